// Package command builds the triples Odoo's write pipeline understands for
// one2many and many2many fields. A Command is a plain value; it encodes to
// the JSON array [op, id, payload].
//
// Example:
//
//	partners.Write(ctx, []int64{7}, odooconnect.Data{
//		"category_id": []command.Command{command.Link(3), command.Unlink(4)},
//		"child_ids":   []command.Command{command.Create(map[string]any{"name": "Jane"})},
//	})
package command

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op is the operation code of a Command.
type Op int

const (
	OpCreate Op = 0 // create a new linked record from Payload
	OpUpdate Op = 1 // write Payload to linked record ID
	OpDelete Op = 2 // remove the link and delete record ID
	OpUnlink Op = 3 // remove the link to record ID, keep the record
	OpLink   Op = 4 // add a link to existing record ID
	OpClear  Op = 5 // remove every link, keep the records
	OpSet    Op = 6 // replace every link with the ids in Payload
)

var opNames = map[Op]string{
	OpCreate: "create",
	OpUpdate: "update",
	OpDelete: "delete",
	OpUnlink: "unlink",
	OpLink:   "link",
	OpClear:  "clear",
	OpSet:    "set",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ErrInvalidCommand is wrapped by every Validate failure.
var ErrInvalidCommand = errors.New("command: invalid relational command")

// Command is one relational mutation. ID is 0 for create, clear and set.
// Payload is a values mapping for create and update, the id list for set and
// 0 otherwise.
type Command struct {
	Op      Op
	ID      int64
	Payload any
}

// Create links a new record built from values.
func Create(values map[string]any) Command {
	if values == nil {
		values = map[string]any{}
	}
	return Command{Op: OpCreate, ID: 0, Payload: values}
}

// Update writes values to the linked record id.
func Update(id int64, values map[string]any) Command {
	if values == nil {
		values = map[string]any{}
	}
	return Command{Op: OpUpdate, ID: id, Payload: values}
}

// Delete unlinks and deletes record id.
func Delete(id int64) Command {
	return Command{Op: OpDelete, ID: id, Payload: 0}
}

// Unlink removes the link to record id without deleting it.
func Unlink(id int64) Command {
	return Command{Op: OpUnlink, ID: id, Payload: 0}
}

// Link adds a link to existing record id.
func Link(id int64) Command {
	return Command{Op: OpLink, ID: id, Payload: 0}
}

// Clear removes every link.
func Clear() Command {
	return Command{Op: OpClear, ID: 0, Payload: 0}
}

// Set replaces every link with ids. The slice is copied.
func Set(ids []int64) Command {
	cp := make([]int64, len(ids))
	copy(cp, ids)
	return Command{Op: OpSet, ID: 0, Payload: cp}
}

// Validate checks the triple has the shape its operation requires.
func (c Command) Validate() error {
	switch c.Op {
	case OpCreate:
		if c.ID != 0 {
			return fmt.Errorf("%w: %s takes no id, got %d", ErrInvalidCommand, c.Op, c.ID)
		}
		return checkValues(c)
	case OpUpdate:
		if c.ID <= 0 {
			return fmt.Errorf("%w: %s needs a positive id, got %d", ErrInvalidCommand, c.Op, c.ID)
		}
		return checkValues(c)
	case OpDelete, OpUnlink, OpLink:
		if c.ID <= 0 {
			return fmt.Errorf("%w: %s needs a positive id, got %d", ErrInvalidCommand, c.Op, c.ID)
		}
		return checkZero(c)
	case OpClear:
		if c.ID != 0 {
			return fmt.Errorf("%w: %s takes no id, got %d", ErrInvalidCommand, c.Op, c.ID)
		}
		return checkZero(c)
	case OpSet:
		if c.ID != 0 {
			return fmt.Errorf("%w: %s takes no id, got %d", ErrInvalidCommand, c.Op, c.ID)
		}
		ids, ok := c.Payload.([]int64)
		if !ok {
			return fmt.Errorf("%w: %s payload must be []int64, got %T", ErrInvalidCommand, c.Op, c.Payload)
		}
		for _, id := range ids {
			if id <= 0 {
				return fmt.Errorf("%w: %s payload holds non-positive id %d", ErrInvalidCommand, c.Op, id)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown operation %d", ErrInvalidCommand, int(c.Op))
}

func checkValues(c Command) error {
	if _, ok := c.Payload.(map[string]any); !ok {
		return fmt.Errorf("%w: %s payload must be a values mapping, got %T", ErrInvalidCommand, c.Op, c.Payload)
	}
	return nil
}

func checkZero(c Command) error {
	switch p := c.Payload.(type) {
	case nil:
		return nil
	case int:
		if p == 0 {
			return nil
		}
	case int64:
		if p == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s payload must be 0, got %v", ErrInvalidCommand, c.Op, c.Payload)
}

func (c Command) payload() any {
	if c.Payload == nil {
		return 0
	}
	return c.Payload
}

// ToRPC returns the triple as a plain list.
func (c Command) ToRPC() []interface{} {
	return []interface{}{int(c.Op), c.ID, c.payload()}
}

// MarshalJSON encodes the triple as [op, id, payload]. Invalid commands fail
// to encode rather than reach the server.
func (c Command) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c.ToRPC())
}

// String renders the triple for logs, e.g. "(6, 0, [1 2 3])".
func (c Command) String() string {
	return fmt.Sprintf("(%d, %d, %v)", int(c.Op), c.ID, c.payload())
}

// odooconnect/example/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/ilcreatore32/odooconnect"
	"github.com/ilcreatore32/odooconnect/command"
)

func main() {
	// Connection details come from $ODOO_CONFIG and the ODOO_URL, ODOO_DB,
	// ODOO_USERNAME and ODOO_PASSWORD environment variables.
	cfg, err := odooconnect.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load Odoo configuration: %v", err)
	}
	cfg.LoggerEnv = odooconnect.EnvDevelopment

	appLogger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create application Zap logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	session, err := odooconnect.NewFromConfig(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Odoo session", zap.Error(err))
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	partners := session.Env(odooconnect.ModelResPartner)

	// --- Search companies and read the first one ---
	fmt.Println("\n--- Searching for companies ---")
	companyIDs, err := partners.Search(ctx, odooconnect.Domain{
		{"is_company", "=", true},
		{"active", "=", true},
	}, &odooconnect.Options{Limit: 5, Order: "name"})
	if err != nil {
		appLogger.Error("Error searching for companies", zap.Error(err))
		if errors.Is(err, odooconnect.ErrAuthentication) {
			fmt.Println(">> Authentication failed, check the Odoo credentials.")
		}
		return
	}
	fmt.Printf("Found %d company IDs: %v\n", len(companyIDs), companyIDs)

	if len(companyIDs) > 0 {
		company, err := partners.ReadOne(ctx, companyIDs[0], odooconnect.Fields{"name", "email", "city", "country_id"})
		if err != nil {
			appLogger.Error("Error reading company", zap.Error(err), zap.Int64("company_id", companyIDs[0]))
		} else {
			fmt.Printf("Company details: %+v\n", company)
		}
	}

	// --- SearchOne reports a miss as ErrRecordNotFound ---
	_, err = partners.SearchOne(ctx, odooconnect.Domain{{"name", "=", "ThisCompanyDoesNotExist12345"}})
	if errors.Is(err, odooconnect.ErrRecordNotFound) {
		fmt.Println(">> No partner with that name, as expected.")
	}

	// --- Create a company with two contacts in one call ---
	fmt.Println("\n--- Creating a partner with relational commands ---")
	companyID, err := partners.Create(ctx, odooconnect.Data{
		"name":       "Test Partner from Go",
		"email":      "test.go@example.com",
		"is_company": true,
		"child_ids": []command.Command{
			command.Create(map[string]any{"name": "Contact One"}),
			command.Create(map[string]any{"name": "Contact Two"}),
		},
	})
	if err != nil {
		appLogger.Error("Error creating partner", zap.Error(err))
		return
	}
	fmt.Printf("Created partner %d\n", companyID)

	// --- Work through a record proxy ---
	record := partners.Browse(companyID)
	name, err := record.Get(ctx, "name")
	if err != nil {
		appLogger.Error("Error reading name through the record", zap.Error(err))
	} else {
		fmt.Printf("Record %d is called %v\n", record.ID(), name)
	}

	if err := record.Set(ctx, "phone", "+1234567890"); err != nil {
		appLogger.Error("Error setting phone", zap.Error(err))
	}
	children, err := record.Get(ctx, "child_ids")
	if err != nil {
		appLogger.Error("Error reading contacts", zap.Error(err))
	} else {
		fmt.Printf("Contacts: %v\n", children)
	}

	// Names that are not fields are called as methods on the record.
	if _, err := record.Invoke(ctx, "name_get"); err != nil {
		appLogger.Warn("name_get failed", zap.Error(err))
	}

	// --- Same record, Spanish labels ---
	spanish := record.WithContext(odooconnect.OdooContext{"lang": "es_ES"})
	if country, err := spanish.Get(ctx, "country_id"); err == nil {
		fmt.Printf("Country (es_ES): %v\n", country)
	}

	// --- Clean up ---
	fmt.Println("\n--- Cleaning up ---")
	contactIDs, err := partners.Search(ctx, odooconnect.Domain{{"parent_id", "=", companyID}})
	if err != nil {
		appLogger.Error("Error finding contacts", zap.Error(err))
	}
	deleted, err := partners.Unlink(ctx, append(contactIDs, companyID))
	if err != nil {
		appLogger.Error("Error deleting partners", zap.Error(err))
	} else {
		fmt.Printf("Deleted partners: %t\n", deleted)
	}

	fmt.Println("\nExample execution completed.")
}

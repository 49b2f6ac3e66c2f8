// seed-templates publishes form template versions from a JSON file. Each entry becomes the
// next version of the company's template with the same template_code.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/seed-templates --company-id fleet-1 --file templates.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/mmdatafocus/compliance_backend/workflow"
)

func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	file := flag.String("file", "", "Required: JSON array of templates")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before seeding")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" || strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--company-id and --file are required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var inputs []models.NewTemplateVersion
	if err := json.Unmarshal(raw, &inputs); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", *file, err)
		os.Exit(1)
	}

	db := config.ConnectDatabaseWithRetry()
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, *companyID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetCorrelationIdInContext(ctx, "seed-templates")

	registry := workflow.NewTemplateRegistry(db)
	failed := 0
	for i := range inputs {
		v, err := registry.Publish(ctx, &inputs[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "template %q: %v\n", inputs[i].TemplateCode, err)
			failed++
			continue
		}
		fmt.Printf("Published %s v%d (template_id=%d, %d signers)\n", v.TemplateCode, v.Version, v.TemplateId, len(v.RequiredSigners))
	}
	if failed > 0 {
		os.Exit(2)
	}
}

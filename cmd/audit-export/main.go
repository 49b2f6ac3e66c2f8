// audit-export writes the submission audit workbook (submissions, signatures and status
// history) of one company to an xlsx file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/models/reports"
	"github.com/mmdatafocus/compliance_backend/utils"
)

func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	templateID := flag.Int("template-id", 0, "Optional: restrict to one template")
	year := flag.Int("year", 0, "Optional: restrict to submissions created in this year")
	out := flag.String("out", "audit.xlsx", "Output file")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}
	filter := models.SubmissionFilter{}
	if *templateID > 0 {
		filter.TemplateId = templateID
	}
	if *year > 0 {
		filter.Year = year
	}

	db := config.ConnectDatabaseWithRetry()
	ctx := utils.SetCompanyIdInContext(context.Background(), *companyID)

	f, err := reports.AuditWorkbook(ctx, db, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build workbook: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := f.SaveAs(*out); err != nil {
		fmt.Fprintf(os.Stderr, "save %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

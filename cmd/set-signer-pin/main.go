// set-signer-pin stores a bcrypt hash of a signer's PIN for PIN-method signatures.
// The PIN is read from SIGNER_PIN so it never shows up in shell history.
//
// Usage:
//   SIGNER_PIN=4829 go run ./cmd/set-signer-pin --company-id fleet-1 --user-id 20
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
)

func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	userID := flag.Int("user-id", 0, "Required: signer user id")
	flag.Parse()

	pin := strings.TrimSpace(os.Getenv("SIGNER_PIN"))
	if strings.TrimSpace(*companyID) == "" || *userID <= 0 || pin == "" {
		fmt.Fprintln(os.Stderr, "--company-id, --user-id and SIGNER_PIN are required")
		os.Exit(1)
	}

	db := config.ConnectDatabaseWithRetry()
	ctx := utils.SetCompanyIdInContext(context.Background(), *companyID)
	if err := models.SetSignerPin(ctx, db, *companyID, *userID, pin); err != nil {
		fmt.Fprintf(os.Stderr, "set pin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("PIN set for user %d in %s\n", *userID, *companyID)
}

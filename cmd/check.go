package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/grocerpal/salewatch/internal/model"
)

var (
	checkPostcode string
	checkJSON     bool
)

var checkCmd = &cobra.Command{
	Use:   "check <items>",
	Short: "Check current prices for a comma-separated list of items",
	Example: `  salewatch check "olive oil, penne pasta 500g"
  salewatch check milk --postcode 3000 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items := parseItems(strings.Join(args, " "))
		if len(items) == 0 {
			return eris.New("no items to check")
		}

		postcode := checkPostcode
		if postcode == "" {
			postcode = cfg.Server.DefaultPostcode
		}
		if !validPostcode(postcode) {
			return eris.Errorf("invalid postcode %q: expected 4 digits", postcode)
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Checker.CheckItems(cmd.Context(), items, postcode)
		if err != nil {
			return eris.Wrap(err, "check items")
		}

		if checkJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		printCheckResults(resp)
		return nil
	},
}

func printCheckResults(resp *model.CheckResponse) {
	for _, res := range resp.Results {
		if res.BestMatch == nil {
			fmt.Printf("%s @ %s: no match found\n", res.Input, res.Retailer)
			continue
		}

		line := fmt.Sprintf("%s @ %s: %s", res.Input, res.Retailer, *res.BestMatch)
		if res.Price != nil {
			line += fmt.Sprintf(" $%.2f", *res.Price)
		}
		if res.OnSale {
			line += " ON SALE"
			if res.Was != nil {
				line += fmt.Sprintf(" (was $%.2f)", *res.Was)
			}
			if res.PromoText != nil {
				line += " " + *res.PromoText
			}
		}
		fmt.Println(line)

		for _, alt := range res.Alternatives {
			altLine := fmt.Sprintf("  alt: %s", alt.Name)
			if alt.Price != nil {
				altLine += fmt.Sprintf(" $%.2f", *alt.Price)
			}
			if alt.OnSale {
				altLine += " ON SALE"
			}
			fmt.Printf("%s (match %.2f)\n", altLine, alt.MatchScore)
		}
		for _, saving := range res.PotentialSavings {
			fmt.Printf("  save $%.2f (%.1f%%) with %s\n", saving.Savings, saving.Percentage, saving.Alternative)
		}
	}
	fmt.Printf("\n%d item(s) checked for postcode %s\n", resp.ItemsChecked, resp.Postcode)
}

// parseItems splits comma-separated free text into trimmed, non-empty
// item queries.
func parseItems(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// validPostcode reports whether s is a 4-digit Australian postcode.
func validPostcode(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func init() {
	checkCmd.Flags().StringVar(&checkPostcode, "postcode", "", "4-digit postcode (default from config)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the raw JSON response")
	rootCmd.AddCommand(checkCmd)
}

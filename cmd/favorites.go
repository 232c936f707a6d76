package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var favoritesRetailer string

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage favorite products",
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <product>",
	Short: "Add a product to favorites",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product := strings.Join(args, " ")

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		added, err := env.Store.AddFavorite(cmd.Context(), product, favoritesRetailer)
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("%q is already a favorite at %s\n", product, favoritesRetailer)
			return nil
		}
		fmt.Printf("added %q at %s to favorites\n", product, favoritesRetailer)
		return nil
	},
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite products",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		favorites, err := env.Store.ListFavorites(cmd.Context())
		if err != nil {
			return err
		}
		if len(favorites) == 0 {
			fmt.Println("no favorites yet")
			return nil
		}
		for _, fav := range favorites {
			fmt.Printf("%s  %s @ %s\n", fav.ID, fav.ProductName, fav.Retailer)
		}
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a favorite by its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		removed, err := env.Store.RemoveFavorite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("no favorite with id %s\n", args[0])
			return nil
		}
		fmt.Println("favorite removed")
		return nil
	},
}

func init() {
	favoritesAddCmd.Flags().StringVar(&favoritesRetailer, "retailer", "woolworths", "retailer the favorite is tracked at")

	favoritesCmd.AddCommand(favoritesAddCmd, favoritesListCmd, favoritesRemoveCmd)
	rootCmd.AddCommand(favoritesCmd)
}

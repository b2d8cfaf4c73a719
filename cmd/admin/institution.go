package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/models"
)

var institutionCmd = &cobra.Command{
	Use:   "institution",
	Short: "Manage issuing institutions",
}

var institutionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new institution",
	RunE:  createInstitution,
}

var institutionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all institutions",
	RunE:  listInstitutions,
}

var (
	institutionName    string
	institutionAddress string
	institutionEmail   string
	institutionWebsite string
)

func init() {
	institutionCreateCmd.Flags().StringVarP(&institutionName, "name", "n", "", "Institution name (required)")
	institutionCreateCmd.Flags().StringVarP(&institutionAddress, "address", "a", "", "Postal address (required)")
	institutionCreateCmd.Flags().StringVar(&institutionEmail, "email", "", "Contact email")
	institutionCreateCmd.Flags().StringVar(&institutionWebsite, "website", "", "Website URL")

	institutionCreateCmd.MarkFlagRequired("name")
	institutionCreateCmd.MarkFlagRequired("address")

	institutionCmd.AddCommand(institutionCreateCmd)
	institutionCmd.AddCommand(institutionListCmd)
}

func createInstitution(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	inst := &models.Institution{
		Name:    institutionName,
		Address: institutionAddress,
		Email:   institutionEmail,
		Website: institutionWebsite,
	}
	if err := repository.NewInstitutionRepository(database.DB).Create(ctx, inst); err != nil {
		return fmt.Errorf("failed to create institution: %w", err)
	}

	fmt.Printf("\nInstitution created successfully!\n")
	fmt.Printf("ID:      %d\n", inst.ID)
	fmt.Printf("Name:    %s\n", inst.Name)
	fmt.Printf("Address: %s\n", inst.Address)
	fmt.Printf("Email:   %s\n", inst.Email)
	fmt.Printf("\nUse \"institution\": %d when issuing certificates.\n", inst.ID)

	return nil
}

func listInstitutions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	institutions, err := repository.NewInstitutionRepository(database.DB).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list institutions: %w", err)
	}

	if len(institutions) == 0 {
		fmt.Println("No institutions found")
		return nil
	}

	fmt.Printf("\nTotal institutions: %d\n\n", len(institutions))
	fmt.Printf("%-5s %-35s %-30s %s\n", "ID", "Name", "Email", "Created")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, inst := range institutions {
		fmt.Printf("%-5d %-35s %-30s %s\n",
			inst.ID,
			inst.Name,
			inst.Email,
			inst.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

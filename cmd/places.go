package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/wheelmate/wheelmate/internal/model"
)

// -- verify --

var verifyCmd = &cobra.Command{
	Use:   "verify <place-name>",
	Short: "Record a community confirmation of a place's accessibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			user = os.Getenv("USER")
		}
		disputed, _ := cmd.Flags().GetBool("disputed")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Verify(ctx, args[0], user, !disputed); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Recorded verification of %q by %s.\n", args[0], user)
		return nil
	},
}

// -- rate --

var rateCmd = &cobra.Command{
	Use:   "rate <place-name> <fully|partially|not|unknown>",
	Short: "Correct the accessibility rating of a cached place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		r, err := model.ParseRating(args[1])
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Rate(ctx, args[0], r); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Rated %q as %s.\n", args[0], r.Label())
		return nil
	},
}

// -- photo --

var photoCmd = &cobra.Command{
	Use:   "photo <place-name> <image-file>",
	Short: "Attach a photo to a cached place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrap(err, "read photo")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.SetPhoto(ctx, args[0], data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored %d byte photo for %q.\n", len(data), args[0])
		return nil
	},
}

// -- show --

var showCmd = &cobra.Command{
	Use:   "show <place-name>",
	Short: "Show a cached place and its verifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		p, vs, err := env.Engine.Place(ctx, args[0])
		if err != nil {
			return err
		}
		if format != formatTable {
			return encode(cmd.OutOrStdout(), format, placeOutput{Place: *p, Verifications: vs})
		}
		formatPlace(cmd.OutOrStdout(), p, vs)
		return nil
	},
}

// placeOutput is the structured form printed by show --output.
type placeOutput struct {
	model.Place   `yaml:",inline"`
	Verifications []model.Verification `json:"verifications" yaml:"verifications"`
}

func init() {
	verifyCmd.Flags().String("user", "", "name recorded with the verification (default $USER)")
	verifyCmd.Flags().Bool("disputed", false, "record that the listed accessibility could not be confirmed")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(photoCmd)
	rootCmd.AddCommand(showCmd)
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/loader"
)

var checkCmd = &cobra.Command{
	Use:   "check [definitions-root]",
	Short: "Validate the definitions tree and report diagnostics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "definitions"
		if len(args) > 0 {
			root = args[0]
		}
		return check(root)
	},
}

func check(root string) error {
	result, err := loader.New(zap.NewNop()).Load(root)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	for _, c := range result.Collections {
		green.Printf("✓ ")
		fmt.Printf("collection %s/%s", c.Project, c.Name)
		gray.Printf("  (%d fields)\n", len(c.Fields))
	}
	for _, a := range result.Actions {
		green.Printf("✓ ")
		fmt.Printf("action %s/%s", a.Project, a.Name)
		gray.Printf("  (%d inputs)\n", len(a.Fields))
	}
	for _, defErr := range result.Errors {
		red.Printf("✗ ")
		fmt.Println(defErr.Error())
	}

	fmt.Printf("\n%d collection(s), %d action(s), %d error(s)\n",
		len(result.Collections), len(result.Actions), len(result.Errors))
	if len(result.Errors) > 0 {
		return fmt.Errorf("definitions tree has errors")
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var newProject string

func init() {
	newCmd.Flags().StringVar(&newProject, "project", "default", "project the collection belongs to")
}

var newCmd = &cobra.Command{
	Use:   "new <collection-name>",
	Short: "Write a starter collection definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scaffold(newProject, args[0])
	},
}

const collectionTemplate = `name: %s
title: %s
fields:
  - name: title
    type: string
    required: true
    searchable: true
    permissions:
      write: [editor]
  - name: status
    type: enum
    values: [draft, published]
    permissions:
      write: [editor]
`

func scaffold(project, name string) error {
	dir := filepath.Join("definitions", project, "collections")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, name+".yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	content := fmt.Sprintf(collectionTemplate, name, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}

	fmt.Printf("created %s\n", path)
	return nil
}

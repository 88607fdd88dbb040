package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	// VersionMajor is the major number in stratify's version
	VersionMajor = 0
	// VersionMinor is the minor number in stratify's version
	VersionMinor = 1
	// VersionPatch is the patch number in stratify's version
	VersionPatch = 0
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of stratify",
		Long:  `All software has versions. This is stratify's`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stratify v%d.%d.%d\n", VersionMajor, VersionMinor, VersionPatch)
		},
	}
}

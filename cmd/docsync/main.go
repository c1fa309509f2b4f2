// Command docsync operates the document sync layer: configuration checks,
// store health, index provisioning and catalog inspection.
package main

import "github.com/nimburion/docsync/pkg/cli"

func main() {
	cli.Execute(cli.NewCommand(cli.CommandOptions{
		Name:        "docsync",
		Description: "Denormalized relation sync for the commerce document store",
		ConfigPath:  "config.yaml",
	}))
}

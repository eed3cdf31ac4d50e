package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duynguyendang/gca-datalog/pkg/server"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query surface (POST /evaluate, GET /relations/{name})",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				if port := os.Getenv("PORT"); port != "" {
					addr = ":" + port
				} else {
					addr = ":8080"
				}
			}
			fmt.Fprintf(os.Stderr, "listening on %s\n", addr)
			srv := server.NewServer(logger)
			defer srv.Close()
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $PORT or :8080)")
	return cmd
}

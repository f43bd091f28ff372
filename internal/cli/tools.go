package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/wire"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect or serve the research tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools offered by the configured tools server",
	RunE: func(cmd *cobra.Command, args []string) error {
		tools, err := wire.ToolProvider().Manifest(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCLASS\tDESCRIPTION")
		for _, t := range tools {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, research.ClassOf(t.Name), t.Description)
		}
		return w.Flush()
	},
}

var toolsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research tools over MCP",
	Long: `Serve the built-in research tools over the Model Context Protocol.

By default the server speaks MCP on stdin/stdout, which is what the
"command" tools transport launches. With --http it serves the streamable
HTTP transport instead, for the "http" transport.

Examples:
  dialectica tools serve
  dialectica tools serve --http :8931`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := wire.ToolServer()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("http")
		if addr == "" {
			slog.Debug("serving tools on stdio")
			return srv.MCPServer.Run(cmd.Context(), &sdkmcp.StdioTransport{})
		}

		handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
			return srv.MCPServer
		}, nil)
		return serveHTTP(cmd.Context(), addr, handler)
	},
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	httpSrv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tools server listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("tools server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// ToolsCmd returns the tools command
func ToolsCmd() *cobra.Command {
	toolsServeCmd.Flags().String("http", "", "Serve streamable HTTP on this address instead of stdio")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsServeCmd)
	return toolsCmd
}

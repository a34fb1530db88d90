package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/queue-sentinel/internal/config"
	"github.com/GriffinCanCode/queue-sentinel/internal/grpcclient"
	"github.com/GriffinCanCode/queue-sentinel/internal/server"
)

// grpcTarget turns a listen address such as ":50061" into a dial target.
func grpcTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	addr := cfg.GRPCAddr
	if grpcAddr != "" {
		addr = grpcAddr
	}

	client, err := grpcclient.New(grpcTarget(addr))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchHealth {
		return client.Watch(ctx, server.HealthService, func(st healthpb.HealthCheckResponse_ServingStatus) {
			fmt.Println(statusColor(st))
		})
	}

	overall, err := client.Check(ctx, "")
	if err != nil {
		return fmt.Errorf("sentinel not reachable: %w", err)
	}
	armed, err := client.Check(ctx, server.HealthService)
	if err != nil {
		return err
	}
	fmt.Printf("process: %s\n", statusColor(overall))
	fmt.Printf("%s: %s\n", server.HealthService, statusColor(armed))
	if armed != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", server.HealthService, armed)
	}
	return nil
}

func statusColor(st healthpb.HealthCheckResponse_ServingStatus) string {
	if st == healthpb.HealthCheckResponse_SERVING {
		return color.GreenString(st.String())
	}
	return color.YellowString(st.String())
}

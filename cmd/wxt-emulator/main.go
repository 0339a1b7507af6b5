package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrissnell/wxtpoller/internal/emulator"
	"github.com/chrissnell/wxtpoller/internal/log"
)

func main() {
	var (
		port  = flag.String("port", "4001", "TCP port to listen on")
		noise = flag.Bool("noise", false, "send a garbage line before every reply")
		debug = flag.Bool("debug", false, "log every query")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Vaisala WXT transmitter emulator")

	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	srv := emulator.NewServer(emulator.RandomSource(time.Now().UnixNano()), log.Named("emulator"))
	if *noise {
		srv.Noise = "\x00\x7f?"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Serve(ctx, listener); err != nil {
		log.Errorf("emulator stopped: %v", err)
	}
}

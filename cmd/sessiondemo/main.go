// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Azure/mqttsession"
	"github.com/Azure/mqttsession/internal"
	"github.com/Azure/mqttsession/pahov3"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

type printer struct{}

func main() {
	ctx := context.Background()

	config := flag.String("c", "", "YAML configuration file (default: MQTT_* environment)")
	topic := flag.String("t", "sessiondemo/chat", "the topic to chat on")
	v3 := flag.Bool("v3", false, "whether to speak MQTT 3.1.1")
	debug := flag.Bool("debug", false, "whether to log packets")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	var cfg *mqttsession.SessionClientConfig
	if *config != "" {
		cfg = must(mqttsession.SessionClientConfigFromFile(*config))
	} else {
		cfg = must(mqttsession.SessionClientConfigFromEnv())
	}
	if cfg.ClientID == "" {
		cfg.ClientID = demoClientID(*v3)
	}

	opts := []mqttsession.SessionClientOption{mqttsession.WithLogger(logger)}
	if *v3 {
		opts = append(opts, mqttsession.WithTransport(&pahov3.Transport{
			TLSConfig: cfg.TLSConfig(),
			Logger:    logger,
		}))
	}
	client := must(mqttsession.NewSessionClientFromConfig(cfg, opts...))

	defer client.RegisterConnectionListener(printer{})()
	defer client.RegisterActionListener(mqttsession.ActionListenerFunc(
		func(e *mqttsession.ActionEvent) {
			if !e.Succeeded() {
				slog.Warn("operation failed",
					slog.String("operation", e.Kind.String()),
					slog.String("reason", e.ReasonCode.String()),
				)
			}
		},
	))()

	check(wait(ctx, client.Connect(cfg.CleanSession, cfg.KeepAliveSeconds())))
	check(wait(ctx, client.Subscribe(*topic, mqttsession.DefaultQoS)))
	defer func() { _ = wait(ctx, client.Disconnect()) }()

	fmt.Printf("Chatting on %s as %s. Enter q to quit.\n",
		color.CyanString(*topic),
		color.GreenString(client.ID()),
	)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "q":
			return
		}
		client.Publish(*topic, []byte(line), mqttsession.DefaultQoS, false)
	}
}

func (printer) OnConnectionEvent(e *mqttsession.ConnectionEvent) {
	switch e.Kind {
	case mqttsession.Connected:
		fmt.Println(color.GreenString("connected"),
			"session_present:", e.SessionPresent,
			"reconnected:", e.Reconnected,
		)
	case mqttsession.ConnectionLost:
		fmt.Println(color.RedString("connection lost:"), e.Cause)
	}
}

func (printer) OnMessageArrived(m *mqttsession.Message) {
	fmt.Printf("%s %s\n", color.CyanString("[%s]", m.Topic), m.Payload)
}

// wait blocks for an operation and converts its failure into an error.
func wait(ctx context.Context, t *mqttsession.Token) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := t.Wait(ctx); err != nil {
		return err
	}
	return t.Err()
}

func check(e error) {
	if e != nil {
		panic(e)
	}
}

func must[T any](t T, e error) T {
	check(e)
	return t
}

// demoClientID picks a client ID that the negotiated protocol accepts. MQTT
// 3.1.1 brokers need only admit IDs of up to 23 characters.
func demoClientID(v3 bool) string {
	if v3 {
		return internal.RandomClientID("sessiondemo")
	}
	return "sessiondemo-" + uuid.NewString()
}

// Copyright 2024 The hypervisor-builder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/VirtwhoQE/hypervisor-builder/internal/util/logging"
	"github.com/VirtwhoQE/hypervisor-builder/pkg/ahv"
	"github.com/VirtwhoQE/hypervisor-builder/pkg/kubevirt"
	"github.com/VirtwhoQE/hypervisor-builder/pkg/libvirt"
	"github.com/VirtwhoQE/hypervisor-builder/pkg/virt"
)

const (
	Name = "hypervisor-cli"
)

func main() {
	var (
		hypervisor  = flag.String("hypervisor", "ahv", "hypervisor backend: ahv, kubevirt or libvirt")
		action      = flag.String("action", "search", "action: search, start, stop, suspend, resume, add or delete")
		guest       = flag.String("guest", "", "guest name to operate on")
		memoryMB    = flag.Int("memory", 1024, "guest memory in MiB (add)")
		vcpus       = flag.Int("vcpus", 1, "guest vCPU count (add)")
		description = flag.String("description", "", "guest description (ahv add)")
		image       = flag.String("image", "", "path to a qcow2 image on the host (libvirt add)")
		development = flag.Bool("development", false, "human-readable log output")
	)
	flag.Parse()

	logOpts := logging.DefaultOptions()
	logOpts.Development = *development
	log := logging.Setup(logOpts).WithName(Name)

	if *guest == "" {
		log.Error(nil, "the -guest flag must be set")
		os.Exit(1)
	}

	config, err := loadConfig()
	if err != nil {
		log.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metricsServer := startMetricsServer(config, reg, log)

	if err := run(ctx, config, reg, log, runOptions{
		hypervisor:  *hypervisor,
		action:      *action,
		guest:       *guest,
		memoryMB:    *memoryMB,
		vcpus:       *vcpus,
		description: *description,
		image:       *image,
	}); err != nil {
		log.Error(err, "command failed", "hypervisor", *hypervisor, "action", *action)
		stopMetricsServer(metricsServer, log)
		os.Exit(1)
	}

	stopMetricsServer(metricsServer, log)
}

type runOptions struct {
	hypervisor  string
	action      string
	guest       string
	memoryMB    int
	vcpus       int
	description string
	image       string
}

func run(ctx context.Context, config *Config, reg prometheus.Registerer, log logr.Logger, opts runOptions) error {
	switch opts.hypervisor {
	case "ahv":
		return runAHV(ctx, config, reg, log, opts)
	case "kubevirt":
		return runKubevirt(ctx, config, log, opts)
	case "libvirt":
		return runLibvirt(config, log, opts)
	default:
		return fmt.Errorf("unknown hypervisor %q", opts.hypervisor)
	}
}

func runAHV(ctx context.Context, config *Config, reg prometheus.Registerer, log logr.Logger, opts runOptions) error {
	clientOpts := []ahv.Option{
		ahv.WithLogger(log),
		ahv.WithMetrics(reg),
		ahv.WithTLSVerify(config.AHV.TLSVerify),
		ahv.WithResponseDebug(config.AHV.Debug),
	}
	if config.AHV.Port != 0 {
		clientOpts = append(clientOpts, ahv.WithPort(config.AHV.Port))
	}
	if config.AHV.Version != "" {
		clientOpts = append(clientOpts, ahv.WithVersion(config.AHV.Version))
	}
	if config.AHV.Retries != 0 {
		clientOpts = append(clientOpts, ahv.WithRetries(config.AHV.Retries))
	}
	if config.AHV.RetryIntervalSeconds != 0 {
		clientOpts = append(clientOpts,
			ahv.WithRetryInterval(time.Duration(config.AHV.RetryIntervalSeconds)*time.Second))
	}

	client := ahv.NewClient(config.AHV.Server, config.AHV.Username, config.AHV.Password, clientOpts...)

	switch opts.action {
	case "search":
		found, err := client.GuestSearch(ctx, opts.guest)
		if err != nil {
			return err
		}
		return printGuest(found)
	case "start":
		return requireDone(client.GuestStart(ctx, opts.guest))
	case "stop":
		return requireDone(client.GuestStop(ctx, opts.guest))
	case "suspend":
		return requireDone(client.GuestSuspend(ctx, opts.guest))
	case "resume":
		return requireDone(client.GuestResume(ctx, opts.guest))
	case "add":
		return requireDone(client.GuestAdd(ctx, opts.guest, ahv.GuestAddSpec{
			MemoryMB:    opts.memoryMB,
			NumVCPUs:    opts.vcpus,
			Description: opts.description,
		}))
	case "delete":
		return requireDone(client.GuestDelete(ctx, opts.guest))
	default:
		return fmt.Errorf("unknown action %q", opts.action)
	}
}

func runKubevirt(ctx context.Context, config *Config, log logr.Logger, opts runOptions) error {
	clientOpts := []kubevirt.Option{kubevirt.WithLogger(log)}
	if config.Kubevirt.APIVersion != "" {
		clientOpts = append(clientOpts, kubevirt.WithAPIVersion(config.Kubevirt.APIVersion))
	}

	client, err := kubevirt.New(config.Kubevirt.Endpoint, config.Kubevirt.Token, clientOpts...)
	if err != nil {
		return err
	}

	switch opts.action {
	case "search":
		found, err := client.GuestSearch(ctx, opts.guest)
		if err != nil {
			return err
		}
		return printGuest(found)
	default:
		return fmt.Errorf("action %q is not supported on kubevirt", opts.action)
	}
}

func runLibvirt(config *Config, log logr.Logger, opts runOptions) error {
	uri := config.Libvirt.URI
	if uri == "" {
		uri = libvirt.RemoteURI(config.Libvirt.User, config.Libvirt.Host)
	}

	client, err := libvirt.Connect(uri, libvirt.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error(err, "failed to close libvirt connection")
		}
	}()

	switch opts.action {
	case "search":
		found, err := client.GuestSearch(opts.guest)
		if err != nil {
			return err
		}
		return printGuest(found)
	case "start":
		return client.GuestStart(opts.guest)
	case "stop":
		return client.GuestStop(opts.guest)
	case "suspend":
		return client.GuestSuspend(opts.guest)
	case "resume":
		return client.GuestResume(opts.guest)
	case "add":
		return client.GuestAdd(opts.guest, libvirt.GuestConfig{
			ImagePath: opts.image,
			MemoryMB:  opts.memoryMB,
			VCPUs:     opts.vcpus,
		})
	case "delete":
		return client.GuestDelete(opts.guest)
	default:
		return fmt.Errorf("unknown action %q", opts.action)
	}
}

// printGuest writes the guest record to stdout as JSON so the harness
// can consume it.
func printGuest(guest *virt.Guest) error {
	if guest == nil {
		return errors.New("guest not found")
	}

	data, err := json.MarshalIndent(guest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding guest record: %w", err)
	}

	fmt.Println(string(data))

	return nil
}

// requireDone converts the ok-style result of power and lifecycle
// operations into an error exit.
func requireDone(done bool, err error) error {
	if err != nil {
		return err
	}
	if !done {
		return errors.New("operation did not complete")
	}
	return nil
}

func startMetricsServer(config *Config, reg *prometheus.Registry, log logr.Logger) *http.Server {
	if config.MetricsServer.Port == 0 {
		return nil
	}

	server := setupMetricsServer(config, reg)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	log.Info("metrics server started", "addr", server.Addr)

	return server
}

func stopMetricsServer(server *http.Server, log logr.Logger) {
	if server == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "failed to shut down metrics server")
	}
}

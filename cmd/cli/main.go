// Command ik is an operator CLI for the identity-keeper session daemon.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	grpcserver "github.com/and161185/identity-keeper/internal/server/grpc"
	"github.com/and161185/identity-keeper/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---- config/token store ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "identity-keeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "identity-keeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "cli-token.json") }

// ---- grpc dial ----

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, addr, caPath string, insecure, plaintext bool) (*grpc.ClientConn, error) {
	creds := grpcinsecure.NewCredentials()
	if !plaintext {
		var err error
		if creds, err = loadTLS(caPath, insecure); err != nil {
			return nil, err
		}
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds))
}

func usage() {
	fmt.Fprintf(os.Stderr, `ik CLI
Usage:
  ik -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  register   -email <email> -password <password> [-name <display name>]
  signin     -email <email> -password <password>   (saves token)
  signout                                          (forgets token)
  resume                                           (resumes the saved token)
  status     [-json]
  wait       [-max 3s]
  watch      [-until-ready]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the daemon's gRPC API.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "no TLS (local daemon)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline (watch ignores it)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("ik %s (%s)\n", version, buildDate)
		return
	}

	ctx := context.Background()
	if cmd != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	cc, err := dial(ctx, *addr, *caPath, *insecure, *plaintext)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	a := &app{client: grpcserver.NewClient(cc), out: os.Stdout, tokens: &service.TokenFile{Path: tokenPath()}}
	if err := a.run(ctx, cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/and161185/identity-keeper/internal/convert"
	"github.com/and161185/identity-keeper/internal/model"
	grpcserver "github.com/and161185/identity-keeper/internal/server/grpc"
	"github.com/and161185/identity-keeper/internal/service"
)

var errUsage = errors.New("usage")

type app struct {
	client *grpcserver.Client
	out    io.Writer
	tokens *service.TokenFile
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "signin":
		return a.signIn(ctx, args)
	case "signout":
		return a.signOut(ctx)
	case "resume":
		return a.resume(ctx)
	case "status":
		return a.status(ctx, args)
	case "wait":
		return a.wait(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	default:
		return errUsage
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flags("register")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("need -email and -password")
	}
	u, err := a.client.Register(ctx, convert.RegisterRequest{Email: *email, Password: *password, DisplayName: *name})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, u.ID)
	return err
}

func (a *app) signIn(ctx context.Context, args []string) error {
	fs := a.flags("signin")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("need -email and -password")
	}
	tok, err := a.client.SignIn(ctx, convert.SignInRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	if err := a.tokens.Save(model.Tokens{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt}); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	_, err = fmt.Fprintln(a.out, "ok")
	return err
}

func (a *app) signOut(ctx context.Context) error {
	if err := a.client.SignOut(ctx); err != nil {
		return err
	}
	if err := a.tokens.Remove(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.out, "ok")
	return err
}

func (a *app) resume(ctx context.Context) error {
	tok, err := a.tokens.Load()
	if err != nil {
		return fmt.Errorf("signin required: %w", err)
	}
	if err := a.client.Resume(ctx, tok.AccessToken); err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, "ok")
	return err
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := a.flags("status")
	asJSON := fs.Bool("json", false, "print the full session view")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := a.client.GetSession(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err = fmt.Fprintln(a.out, summary(v))
	return err
}

func (a *app) wait(ctx context.Context, args []string) error {
	fs := a.flags("wait")
	maxWait := fs.Duration("max", 3*time.Second, "maximum wait")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.client.WaitForProfile(ctx, *maxWait)
	if err != nil {
		return err
	}
	if ok {
		_, err = fmt.Fprintln(a.out, "ready")
	} else {
		// not a failure: the session settles in the background
		_, err = fmt.Fprintln(a.out, "pending")
	}
	return err
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := a.flags("watch")
	untilReady := fs.Bool("until-ready", false, "exit once the session has a profile")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.client.Watch(ctx, func(v convert.SessionView) bool {
		fmt.Fprintln(a.out, summary(v))
		return !(*untilReady && v.AuthReady && v.Profile != nil)
	})
}

func summary(v convert.SessionView) string {
	s := fmt.Sprintf("gen=%d state=%s ready=%t checking=%t admin=%t", v.Generation, v.State, v.AuthReady, v.DisplayChecking, v.IsAdmin)
	if v.User != nil {
		s += " user=" + v.User.Email
	}
	if v.Error != "" {
		s += fmt.Sprintf(" error=%q", v.Error)
	}
	return s
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/bridge"
	"github.com/inkspine/bookstore/identity"
	"github.com/inkspine/bookstore/internal/config"
	"github.com/inkspine/bookstore/server"
	"github.com/inkspine/bookstore/session"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running storefront: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Storefront stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	store, err := session.NewFileStore(c.GetDataFolder())
	if err != nil {
		return fmt.Errorf("session.NewFileStore %w", err)
	}

	backendClient := backend.NewHTTPClient(c.GetBackendBaseURL(), c.GetBackendTimeout())

	discoveryCtx, cancelDiscovery := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelDiscovery()
	oidcClient, err := identity.NewOidcClient(discoveryCtx, identity.Options{
		IssuerURL:    c.GetIdentityIssuerURL(),
		ClientID:     c.GetIdentityClientID(),
		ClientSecret: c.GetIdentityClientSecret(),
		RedirectURL:  c.GetIdentityRedirectURL(),
	})
	if err != nil {
		return fmt.Errorf("identity.NewOidcClient %w", err)
	}

	br, err := bridge.New(bridge.Deps{
		Store:    store,
		Backend:  backendClient,
		Identity: oidcClient,
	})
	if err != nil {
		return fmt.Errorf("bridge.New %w", err)
	}
	defer br.Close()

	// Recover a persisted session before accepting traffic. A failed recovery
	// leaves the session anonymous; it is not a startup error.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelRecover()
	if err := br.Recover(recoverCtx); err != nil {
		log.Printf("Session recovery failed, starting anonymous: %v\n", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: server.New(c, br, oidcClient)}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func listenAndServe(server *http.Server) error {
	log.Printf("Storefront listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

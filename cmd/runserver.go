package cmd

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bpm-extensions/keycloak-identity/api/handlers"
	"github.com/bpm-extensions/keycloak-identity/api/middleware"
	"github.com/bpm-extensions/keycloak-identity/identity"
	"github.com/bpm-extensions/keycloak-identity/internal/appconfig"
	"github.com/bpm-extensions/keycloak-identity/keycloak"
)

var runServerCmd = &cobra.Command{
	Use:   "runserver",
	Short: "Run the sample SSO application",
	Long:  `Run the sample application demonstrating SSO login against the configured Keycloak realm`,
	Run: func(cmd *cobra.Command, args []string) {

		// Init the logging
		setUp()

		cfg, err := appconfig.LoadConfig(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load configuration")
		}

		client := keycloak.NewClient(cfg.Keycloak.URL, cfg.Keycloak.ClientID,
			cfg.Keycloak.ClientSecret, cfg.Keycloak.Realm)
		if err := client.Authenticate(cmd.Context()); err != nil {
			log.Fatal().Err(err).Msg("could not authenticate against keycloak")
		}

		provider, err := identity.NewProvider(&cfg.Keycloak, client)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid realm configuration")
		}

		sso, err := handlers.NewSSO(cmd.Context(), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("could not set up the SSO flow")
		}

		// Create routes
		r := mux.NewRouter()

		session := middleware.SessionMiddleware([]byte(cfg.Session.Secret), cfg.Session.CookieName)
		var protected = func(next http.HandlerFunc) http.Handler {
			return middleware.WithLogger(session(next))
		}

		// Register the routes
		r.Handle("/login", middleware.WithLogger(handlers.Login(sso))).Methods(http.MethodGet)
		r.Handle("/auth/callback", middleware.WithLogger(handlers.Callback(sso))).Methods(http.MethodGet)
		r.Handle("/logout", middleware.WithLogger(handlers.Logout(sso))).Methods(http.MethodGet)
		r.Handle("/api/profile", protected(handlers.Profile(provider))).Methods(http.MethodGet)
		r.Handle("/api/users", protected(handlers.ListUsers(provider))).Methods(http.MethodGet)
		r.Handle("/api/groups", protected(handlers.ListGroups(provider))).Methods(http.MethodGet)

		if cfg.Port == 0 {
			cfg.Port = 8080
		}
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		log.Info().Msg(fmt.Sprintf("Server started at %s", addr))
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Error().Err(err).Msg("could not start server")
		}
	},
}

func init() {
	rootCmd.AddCommand(runServerCmd)
}

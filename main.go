// Command momal runs the drawing-and-guessing game server: websocket game
// traffic on /ws, the per-room highscore API under /api, optional static
// asset serving.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/honsa/momal/config"
	"github.com/honsa/momal/highscore"
	"github.com/honsa/momal/server"
	"github.com/honsa/momal/words"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	cmd := &cli.Command{
		Name:  "momal",
		Usage: "realtime multiplayer drawing-and-guessing game server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides MOMAL_ADDR)"},
			&cli.StringFlag{Name: "words", Usage: "word list file, one word per line"},
			&cli.StringFlag{Name: "static", Usage: "static asset directory"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromEnv()
	if v := cmd.String("addr"); v != "" {
		cfg.Addr = v
	}
	if v := cmd.String("words"); v != "" {
		cfg.WordsFile = v
	}
	if v := cmd.String("static"); v != "" {
		cfg.StaticDir = v
	}
	if cmd.Bool("debug") || cfg.DebugWS {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	supply := words.New(nil)
	if cfg.WordsFile != "" {
		loaded, err := words.Load(cfg.WordsFile)
		if err != nil {
			return err
		}
		supply = loaded
	}

	scores, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(cfg, supply, scores)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx)

	r := createRouter(cfg, srv, scores)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("momal listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newStore(ctx context.Context, cfg config.Config) (highscore.Store, error) {
	if cfg.PostgresURL != "" {
		log.Info().Msg("using postgres highscore store")
		return highscore.NewPGStore(ctx, cfg.PostgresURL)
	}
	log.Info().Str("path", cfg.HighscoreFile).Msg("using file highscore store")
	return highscore.NewFileStore(cfg.HighscoreFile)
}

func createRouter(cfg config.Config, srv *server.Server, scores highscore.Store) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowCredentials: true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{
				"Content-Type",
				"Upgrade",
				"Connection",
				"Sec-WebSocket-Key",
				"Sec-WebSocket-Version",
				"Sec-WebSocket-Extensions",
				"Sec-WebSocket-Protocol",
			},
		}))
	}

	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	r.GET("/ws", srv.WSHandler())

	r.GET("/api/highscore", highscoreHandler(scores))

	if cfg.StaticDir != "" {
		r.Static("/app", cfg.StaticDir)
	}

	return r
}

func highscoreHandler(scores highscore.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		roomID := ctx.Query("roomId")

		limit := 20
		if raw := ctx.Query("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				limit = v
			}
		}
		if limit < 1 {
			limit = 1
		}
		if limit > 100 {
			limit = 100
		}

		top, err := scores.Top(ctx.Request.Context(), roomID, limit)
		if err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("highscore lookup failed")
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "highscore-unavailable"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"top": top})
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sudhir-72744/remails-websocket/internal/auth"
	"github.com/sudhir-72744/remails-websocket/internal/dedup"
	"github.com/sudhir-72744/remails-websocket/internal/hub"
	"github.com/sudhir-72744/remails-websocket/internal/natsjs"
	"github.com/sudhir-72744/remails-websocket/internal/notify"
	gmailprov "github.com/sudhir-72744/remails-websocket/internal/providers/gmail"
	"github.com/sudhir-72744/remails-websocket/internal/registry"
	"github.com/sudhir-72744/remails-websocket/internal/store/sqlite"
)

type notificationRequest struct {
	UserID       string `json:"userId" binding:"required"`
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId" binding:"required"`
}

type syncRequest struct {
	AccessToken string `json:"accessToken" binding:"required"`
	HistoryID   uint64 `json:"historyId" binding:"required"`
}

func main() {
	addr := envOr("ADDR", ":3000")

	cache := dedup.NewCache(dedup.DefaultTTL)
	defer cache.Close()

	reg := registry.New()

	// Optional JWKS-backed verifier: lets websocket clients register via
	// their session token instead of a registerUser frame.
	var verifier *auth.JWTVerifier
	if jwksURL := os.Getenv("JWKS_URL"); jwksURL != "" {
		v, err := auth.NewJWTVerifier(jwksURL)
		if err != nil {
			log.Fatal(err)
		}
		verifier = v
	}

	// Optional credential provider: enables the server-side full-sync
	// pipeline for known users.
	var tokens notify.TokenSource
	if authURL := os.Getenv("AUTH_SERVER_URL"); authURL != "" {
		tokens = auth.NewTokenClient(authURL)
	}

	var store notify.WatermarkStore
	if dbPath := envOr("DB_PATH", "data/watermarks.db"); dbPath != "off" {
		st, err := sqlite.Open(dbPath)
		if err != nil {
			log.Fatal(err)
		}
		defer st.Close()
		store = st
	}

	mailboxes := func(ctx context.Context, accessToken string) (notify.Mailbox, error) {
		mb, err := gmailprov.New(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		return mb, nil
	}

	broadcaster := notify.NewBroadcaster(reg, nil)
	service := notify.NewService(cache, reg, broadcaster, mailboxes, tokens, store)

	h := hub.New(service, verifier)
	defer h.Close()
	broadcaster.SetSender(h)

	// Change signals can also arrive over NATS from the Pub/Sub bridge.
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		sub, err := natsjs.NewSubscriber(natsURL)
		if err != nil {
			log.Fatal(err)
		}
		defer sub.Close()

		if err := sub.EnsureStream(); err != nil {
			log.Fatal(err)
		}

		fullSync := os.Getenv("NATS_FULL_SYNC") == "1" && tokens != nil
		err = sub.Subscribe(func(sig notify.ChangeSignal) error {
			ctx := context.Background()
			if fullSync {
				return service.SyncUser(ctx, sig.UserID, sig.HistoryID)
			}
			return service.HandleChangeSignal(ctx, sig)
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("consuming change signals from %s", natsURL)
	}

	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "clients": h.Len()})
	})

	r.GET("/ws", h.ServeWS)

	api := r.Group("/api")
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		api.Use(authMiddleware([]byte(secret)))
	}

	// The signal-only path: push {userId, email, newHistoryId} to the
	// user's channel.
	api.POST("/notifications", func(c *gin.Context) {
		var req notificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		err := service.HandleChangeSignal(c.Request.Context(), notify.ChangeSignal{
			UserID:       req.UserID,
			EmailAddress: req.EmailAddress,
			HistoryID:    req.HistoryID,
		})
		if err != nil {
			// No internal detail leaves the process.
			log.Printf("error handling notification: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to handle notification"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	// The full-content path: diff the mailbox and broadcast resolved
	// threads plus label counts.
	api.POST("/sync", func(c *gin.Context) {
		var req syncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		if err := service.HandleFullSync(c.Request.Context(), req.AccessToken, req.HistoryID); err != nil {
			log.Printf("error handling sync: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to sync"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	log.Printf("websocket server ready on %s", addr)
	log.Fatal(r.Run(addr))
}

func authMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/joshuahaertel/friendexing/internal/game"
	"github.com/joshuahaertel/friendexing/internal/store"
)

// placeholderJPEG is served when an image's bytes have expired from the
// session store.
var placeholderJPEG = makePlaceholder()

func makePlaceholder() []byte {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.Gray{Y: 0xcc}.Y)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func registerHandlers(mux *http.ServeMux, config Config, services *Services) {
	mux.HandleFunc("GET /images/{id}", imageHandler(services, false))
	mux.HandleFunc("GET /images/{id}/thumbnail", imageHandler(services, true))
	mux.HandleFunc("GET /games/{id}/qr", qrHandler(config))
	mux.HandleFunc("POST /games", createGameHandler(services))
	mux.HandleFunc("POST /games/{id}/join", joinGameHandler(services))
}

func imageHandler(services *Services, thumbnail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := r.PathValue("id")
		var (
			data []byte
			err  error
		)
		if thumbnail {
			data, err = services.Store.ThumbnailBytes(r.Context(), imageID)
		} else {
			data, err = services.Store.ImageBytes(r.Context(), imageID)
		}
		if errors.Is(err, store.ErrNotFound) {
			data = placeholderJPEG
		} else if err != nil {
			log.Error().Err(err).Str("image_id", imageID).Msg("failed to read image bytes")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(data)
	}
}

// qrHandler renders a QR code pointing at the game's join page, so the
// admin can put the link on a shared screen.
func qrHandler(config Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := r.PathValue("id")
		joinURL := config.PublicURL + "/games/" + gameID + "/join"
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			log.Error().Err(err).Str("game_id", gameID).Msg("failed to encode QR code")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}

type createGameRequest struct {
	AdminName             string `json:"admin_name"`
	GuessTimeLimit        int    `json:"guess_time_limit"`
	ShouldRandomizeFields bool   `json:"should_randomize_fields"`
}

type createGameResponse struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

func createGameHandler(services *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.AdminName == "" || req.GuessTimeLimit <= 0 {
			http.Error(w, "admin_name and a positive guess_time_limit are required", http.StatusBadRequest)
			return
		}

		g, err := services.Game.CreateGame(r.Context(), req.GuessTimeLimit, req.ShouldRandomizeFields, req.AdminName)
		if err != nil {
			log.Error().Err(err).Msg("failed to create game")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, createGameResponse{
			GameID:   g.ID.String(),
			PlayerID: g.Admin().ID.String(),
		})
	}
}

type joinGameRequest struct {
	Name string `json:"name"`
}

type joinGameResponse struct {
	PlayerID string `json:"player_id"`
}

func joinGameHandler(services *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}

		player, err := services.Game.JoinGame(r.Context(), r.PathValue("id"), req.Name)
		if errors.Is(err, game.ErrGameExpired) {
			http.Error(w, "game expired", http.StatusGone)
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to join game")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, joinGameResponse{PlayerID: player.ID.String()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tilerealm/pkg/game"
)

// playerClaims is the JWT subject the CMD_AUTHENTICATE handshake verifies
// (§4.2 "parsed and validated: signature, expiry, subject").
type playerClaims struct {
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// issueToken signs a bearer token for playerID, valid for the configured
// session timeout.
func (s *RPCServer) issueToken(playerID int64, username string) (string, error) {
	now := time.Now()
	claims := playerClaims{
		PlayerID: playerID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.SessionTimeout)),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AuthTokenSecret))
}

// verifyToken parses and validates a bearer token, returning the player id
// it names.
func (s *RPCServer) verifyToken(tokenString string) (int64, error) {
	var claims playerClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.config.AuthTokenSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return claims.PlayerID, nil
}

// registerRequest/loginRequest are the §6 HTTP surface's request bodies.
type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// playerPublic is the client-safe projection of game.Player returned by
// registration (no hashed password, no internal role enum exposed raw).
type playerPublic struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func toPlayerPublic(p *game.Player) playerPublic {
	role := "player"
	switch p.Role {
	case game.RoleModerator:
		role = "moderator"
	case game.RoleAdmin:
		role = "admin"
	}
	return playerPublic{ID: p.ID, Username: p.Username, Role: role}
}

// handleRegister implements `POST /auth/register {username, password} ->
// PlayerPublic` (§6).
func (s *RPCServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.WithError(err).Error("hashing password failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	mapID, x, y := s.config.SpawnPosition()
	spawn := game.Position{MapID: mapID, X: x, Y: y}
	player, err := s.hot.CreatePlayer(r.Context(), req.Username, string(hashed), spawn, s.config.MaxHP, s.config.InventorySize)
	if err != nil {
		http.Error(w, "username already exists", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toPlayerPublic(player))
}

// loginResponse matches the spec's `{access_token, token_type=bearer}`.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleLogin implements `POST /auth/login {form-encoded} -> {access_token,
// token_type}` (§6), re-checking ban/timeout at login time, not just at
// handshake time.
func (s *RPCServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	player, err := s.hot.PlayerByUsername(r.Context(), username)
	if err != nil || player == nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(player.HashedPassword), []byte(password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if player.IsBanned {
		http.Error(w, "account is banned", http.StatusForbidden)
		return
	}
	if player.IsTimedOut(time.Now()) {
		http.Error(w, "account is timed out", http.StatusForbidden)
		return
	}

	token, err := s.issueToken(player.ID, player.Username)
	if err != nil {
		s.logger.WithError(err).Error("issuing token failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{AccessToken: token, TokenType: "bearer"})
}

// appearanceCategory/appearanceOption mirror the shape
// original_source/server/src/services/appearance_options_service.py
// serves, reused verbatim as the HTTP response shape (§6, §9 "Appearance
// options service").
type appearanceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type appearanceCategory struct {
	Field        string              `json:"field"`
	Label        string              `json:"label"`
	Options      []appearanceOption  `json:"options"`
	Restrictions map[string][]string `json:"restrictions,omitempty"`
}

// appearanceCategories is the fixed catalog of customizable appearance
// fields; restrictions map a hair value to the skin-tone values compatible
// with it, matching the original service's validation.
var appearanceCategories = []appearanceCategory{
	{
		Field: "skin_tone", Label: "Skin Tone",
		Options: []appearanceOption{{Value: "light", Label: "Light"}, {Value: "tan", Label: "Tan"}, {Value: "dark", Label: "Dark"}},
	},
	{
		Field: "hair_style", Label: "Hair Style",
		Options: []appearanceOption{{Value: "short", Label: "Short"}, {Value: "long", Label: "Long"}, {Value: "bald", Label: "Bald"}},
	},
	{
		Field: "hair_color", Label: "Hair Color",
		Options: []appearanceOption{{Value: "black", Label: "Black"}, {Value: "brown", Label: "Brown"}, {Value: "blonde", Label: "Blonde"}},
	},
	{
		Field: "outfit", Label: "Outfit",
		Options: []appearanceOption{{Value: "tunic", Label: "Tunic"}, {Value: "robe", Label: "Robe"}, {Value: "armor", Label: "Armor"}},
	},
}

// handleAppearanceOptions implements `GET /appearance/options` (auth
// required) per §6.
func (s *RPCServer) handleAppearanceOptions(w http.ResponseWriter, r *http.Request) {
	if !s.authenticateHTTP(r) {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"categories": appearanceCategories})
}

// authenticateHTTP checks the Authorization bearer token on a plain HTTP
// request (used only by the small authenticated HTTP surface; the
// WebSocket handshake has its own CMD_AUTHENTICATE flow, §4.2).
func (s *RPCServer) authenticateHTTP(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	_, err := s.verifyToken(header[len(prefix):])
	if err != nil {
		logrus.WithError(err).Debug("HTTP bearer token rejected")
		return false
	}
	return true
}

// appearanceValid reports whether an appearance update's values are all
// members of their category's option set, implementing the same
// restriction check the original appearance-options service applies at its
// boundary, reapplied here at the CMD_APPEARANCE_UPDATE command boundary.
func appearanceValid(appearance map[string]string) bool {
	byField := make(map[string]appearanceCategory, len(appearanceCategories))
	for _, cat := range appearanceCategories {
		byField[cat.Field] = cat
	}
	for field, value := range appearance {
		cat, ok := byField[field]
		if !ok {
			return false
		}
		found := false
		for _, opt := range cat.Options {
			if opt.Value == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package auth

import (
	"errors"
	"fmt"
	"mdcollab/core"
	"mdcollab/handlers/api"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var jwtSecret []byte

// AppClaims represents the custom claims for the JWT. Subject carries the
// user id.
type AppClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func InitAuth() {
	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
}

func CreateJWT(user *core.User) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 7)), // 1 week
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: user.Username,
		Email:    user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether a plaintext password matches a stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authPayload struct {
	User  *core.User `json:"user"`
	Token string     `json:"token"`
}

func (req *registerRequest) validate() error {
	if !strings.Contains(req.Email, "@") {
		return fmt.Errorf("email is invalid")
	}
	if len(req.Username) < 3 || len(req.Username) > 50 {
		return fmt.Errorf("username must be between 3 and 50 characters")
	}
	if len(req.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

func HandleRegister(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			api.Fail(w, r, http.StatusBadRequest, "Invalid input")
			return
		}
		if err := req.validate(); err != nil {
			api.Fail(w, r, http.StatusBadRequest, err.Error())
			return
		}

		if _, err := store.GetUserByEmail(r.Context(), req.Email); err == nil {
			api.Fail(w, r, http.StatusBadRequest, "User already exists")
			return
		} else if !errors.Is(err, core.ErrNotFound) {
			logrus.WithError(err).Error("Failed to check for existing user")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to register user")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			logrus.WithError(err).Error("Failed to hash password")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to register user")
			return
		}

		user, err := store.CreateUser(r.Context(), &core.User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: passwordHash,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to create user")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to register user")
			return
		}

		token, err := CreateJWT(user)
		if err != nil {
			logrus.WithError(err).Error("Failed to create JWT")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to register user")
			return
		}

		logrus.WithFields(logrus.Fields{
			"user_id":  user.ID,
			"username": user.Username,
		}).Info("User registered")
		api.OK(w, r, "User created successfully", authPayload{User: user, Token: token})
	}
}

func HandleLogin(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			api.Fail(w, r, http.StatusBadRequest, "Invalid input")
			return
		}

		user, err := store.GetUserByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				api.Fail(w, r, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			logrus.WithError(err).Error("Failed to look up user")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to log in")
			return
		}

		if !CheckPassword(req.Password, user.PasswordHash) {
			api.Fail(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := CreateJWT(user)
		if err != nil {
			logrus.WithError(err).Error("Failed to create JWT")
			api.Fail(w, r, http.StatusInternalServerError, "Failed to log in")
			return
		}

		api.OK(w, r, "Login successful", authPayload{User: user, Token: token})
	}
}

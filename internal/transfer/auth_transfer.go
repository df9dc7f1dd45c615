package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}


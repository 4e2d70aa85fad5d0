package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/api/middleware"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

type caller struct {
	userID uuid.UUID
	role   enums.UserRole
}

// callerFromContext reads the identity Auth placed on the request.
func callerFromContext(ctx context.Context) (caller, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return caller{userID: userID, role: enums.UserRole(middleware.RoleFromContext(ctx))}, nil
}

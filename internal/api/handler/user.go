package handler

import "github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"

// userSummary is the public view of an identity returned by the auth endpoints.
type userSummary struct {
	ID       string      `json:"id"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Username *string     `json:"username,omitempty"`
	Role     domain.Role `json:"role"`
}

func toUserSummary(i *domain.Identity) *userSummary {
	if i == nil {
		return nil
	}
	return &userSummary{ID: i.ID, Email: i.Email, Name: i.Name, Username: i.Username, Role: i.Role}
}

type userEnvelope struct {
	User *userSummary `json:"user"`
}

type successResponse struct {
	Success bool         `json:"success"`
	User    *userSummary `json:"user,omitempty"`
}

package dto

// CreateResourceRequest registers shared equipment.
type CreateResourceRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Type        string `json:"type" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateResourceStatusRequest activates or deactivates a resource.
type UpdateResourceStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

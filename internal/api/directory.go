package api

import (
	"context"
	"net/url"

	"psyconsult-chat/internal/models"
)

// ListPatientsOf fetches the patients assigned to a psychologist.
func (c *Client) ListPatientsOf(ctx context.Context, psychologistID string) ([]models.Profile, error) {
	var dtos []ProfileDTO
	if err := c.getJSON(ctx, "list patients", "/psicologos/"+url.PathEscape(psychologistID)+"/pacientes", &dtos); err != nil {
		return nil, err
	}
	return profiles(dtos), nil
}

// ListPsychologists fetches every psychologist.
func (c *Client) ListPsychologists(ctx context.Context) ([]models.Profile, error) {
	var dtos []ProfileDTO
	if err := c.getJSON(ctx, "list psychologists", "/psicologos", &dtos); err != nil {
		return nil, err
	}
	return profiles(dtos), nil
}

// GetPatient fetches one patient, including the assigned psychologist id.
func (c *Client) GetPatient(ctx context.Context, patientID string) (models.Profile, error) {
	var dto ProfileDTO
	if err := c.getJSON(ctx, "get patient", "/pacientes/"+url.PathEscape(patientID), &dto); err != nil {
		return models.Profile{}, err
	}
	return dto.toModel(), nil
}

func profiles(dtos []ProfileDTO) []models.Profile {
	out := make([]models.Profile, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out
}

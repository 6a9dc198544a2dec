package ai

import "github.com/kiranshivaraju/steelsched/pkg/models"

var (
	ErrProviderUnavailable = models.ErrBackendUnavailable
	ErrInferenceTimeout    = models.ErrBackendTimeout
	ErrInvalidResponse     = models.ErrBackendResponse
)

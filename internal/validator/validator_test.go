package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
)

type trainRequest struct {
	ModelType string  `json:"model_type" validate:"required,oneof=random_forest xgboost"`
	TestSize  float64 `json:"test_size" validate:"gt=0,lt=1"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(trainRequest{ModelType: "xgboost", TestSize: 0.2}))

	err := Validate(trainRequest{ModelType: "svm", TestSize: 1.5})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "field 'model_type' failed validation: must be one of: random_forest xgboost")
	assert.Contains(t, err.Error(), "field 'test_size' failed validation: must be less than 1")
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar(3, "gte=1"))
	assert.Error(t, ValidateVar(0, "gte=1"))
}

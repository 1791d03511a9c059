package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transferForm struct {
	PhoneNumber string `validate:"required,phone"`
	PIN         string `validate:"required,pin"`
	To          string `validate:"required,evmaddr"`
	Amount      string `validate:"required,amount"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := transferForm{
			PhoneNumber: "+254700000001",
			PIN:         "1234",
			To:          "0x1111111111111111111111111111111111111111",
			Amount:      "0.01",
		}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("every wallet tag rejects bad input", func(t *testing.T) {
		invalid := transferForm{
			PhoneNumber: "phone",
			PIN:         "12",
			To:          "0x123",
			Amount:      "-1",
		}

		err := vh.ValidateStruct(&invalid)
		require.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 4)

		tags := map[string]string{}
		for _, fe := range validationErrors {
			tags[fe.Field()] = fe.Tag()
		}
		assert.Equal(t, "phone", tags["PhoneNumber"])
		assert.Equal(t, "pin", tags["PIN"])
		assert.Equal(t, "evmaddr", tags["To"])
		assert.Equal(t, "amount", tags["Amount"])
	})

	t.Run("zero amount", func(t *testing.T) {
		form := transferForm{PhoneNumber: "+254700000001", PIN: "1234", To: "0x1111111111111111111111111111111111111111", Amount: "0.0"}
		assert.Error(t, vh.ValidateStruct(&form))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&transferForm{PhoneNumber: "+254700000001", PIN: "abcd", Amount: "1"})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "PIN")
		assert.Contains(t, response.Details, "To")
	})

	t.Run("non-validation error is not expanded", func(t *testing.T) {
		w := httptest.NewRecorder()

		assert.NotPanics(t, func() {
			SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))
		})

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}

func TestSendJSON(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSON(w, http.StatusCreated, map[string]string{"txHash": "0xabc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"txHash":"0xabc"}`, w.Body.String())
}

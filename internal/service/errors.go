package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrFileTooLarge is wrapped by the validation error for oversized uploads.
	ErrFileTooLarge = errors.New("file too large")
)

// ErrorKind classifies a failed recognition for the transport layer.
type ErrorKind string

const (
	// KindValidation: the upload itself is unacceptable (format, size).
	KindValidation ErrorKind = "validation"
	// KindConfiguration: the server cannot run OCR at all.
	KindConfiguration ErrorKind = "configuration"
	// KindProcessing: conversion or OCR failed on this document.
	KindProcessing ErrorKind = "processing"
)

// Outcomes of a recognition run that did not fail.
const (
	OutcomeExtracted = "extracted"
	OutcomeNoText    = "no_text"
)

// RecognitionError carries a short user-facing message and suggestions.
// Err holds the internal cause and is only ever logged.
type RecognitionError struct {
	Kind        ErrorKind
	Message     string
	Suggestions []string
	Err         error
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

const (
	msgNoFile         = "Файл не передан"
	msgEmptyFile      = "Файл пустой"
	msgFileTooLarge   = "Файл слишком большой"
	msgUnsupported    = "Неподдерживаемый формат файла"
	msgNotConfigured  = "Распознавание временно недоступно"
	msgProcessing     = "Не удалось обработать документ"
	msgNoTextDetected = "Текст на документе не распознан"

	msgPagesTruncated = "Обработаны первые %d из %d страниц"
	msgDraftNotSaved  = "Счёт распознан, но не сохранён в проект"
)

var (
	processingSuggestions = []string{
		"Попробуйте загрузить документ ещё раз",
		"Загрузите более чёткое изображение или скан",
		"Сохраните документ в другом формате (PDF, JPG или PNG)",
		"Уменьшите размер файла или число страниц",
	}
	noTextSuggestions = []string{
		"Убедитесь, что документ хорошо освещён и текст в фокусе",
		"Сфотографируйте документ целиком, без бликов и теней",
		"Используйте скан с разрешением не ниже 200 DPI",
	}
	configurationSuggestions = []string{
		"Повторите попытку позже",
		"Сообщите администратору, что сервис распознавания не настроен",
	}
)

func validationError(message string, maxFileMB int, err error) *RecognitionError {
	return &RecognitionError{
		Kind:    KindValidation,
		Message: message,
		Suggestions: []string{
			"Поддерживаемые форматы: " + strings.Join(AcceptedFormats, ", "),
			fmt.Sprintf("Максимальный размер файла: %d МБ", maxFileMB),
		},
		Err: err,
	}
}

func configurationError(err error) *RecognitionError {
	return &RecognitionError{
		Kind:        KindConfiguration,
		Message:     msgNotConfigured,
		Suggestions: configurationSuggestions,
		Err:         err,
	}
}

func processingError(err error) *RecognitionError {
	return &RecognitionError{
		Kind:        KindProcessing,
		Message:     msgProcessing,
		Suggestions: processingSuggestions,
		Err:         err,
	}
}

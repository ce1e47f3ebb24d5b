package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_IsCorrectReading(t *testing.T) {
	// Arrange
	question := &Question{
		ID:         "q1",
		Word:       "言葉",
		Reading:    "ことば",
		Difficulty: DifficultyB,
	}

	// Act & Assert
	assert.True(t, question.IsCorrectReading("ことば"), "Совпадающее чтение должно считаться верным")
	assert.False(t, question.IsCorrectReading("コトバ"), "Чтение катаканой не совпадает со строкой хираганы")
	assert.False(t, question.IsCorrectReading(""), "Пустой ответ должен считаться неверным")
}

func TestIsValidDifficulty(t *testing.T) {
	// Act & Assert: допустимые уровни
	assert.True(t, IsValidDifficulty(DifficultyC))
	assert.True(t, IsValidDifficulty(DifficultyB))
	assert.True(t, IsValidDifficulty(DifficultyA))
	assert.True(t, IsValidDifficulty(DifficultyS))

	// Assert: недопустимые значения
	assert.False(t, IsValidDifficulty("D"), "Неизвестный уровень должен отклоняться")
	assert.False(t, IsValidDifficulty("s"), "Нижний регистр должен отклоняться")
	assert.False(t, IsValidDifficulty(""), "Пустая строка должна отклоняться")
}

func TestQuestion_TableName(t *testing.T) {
	question := Question{}
	assert.Equal(t, "questions", question.TableName(), "TableName должен возвращать 'questions'")
}

// Тесты для StringArray (JSONB сериализация)

func TestStringArray_Scan_ValidJSON(t *testing.T) {
	// Arrange
	jsonBytes := []byte(`["q1", "q2", "q3"]`)
	var arr StringArray

	// Act
	err := arr.Scan(jsonBytes)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для валидного JSON")
	assert.Len(t, arr, 3, "Должно быть 3 элемента")
	assert.Equal(t, "q1", arr[0])
	assert.Equal(t, "q2", arr[1])
	assert.Equal(t, "q3", arr[2])
}

func TestStringArray_Scan_NullValue(t *testing.T) {
	// Arrange
	var arr StringArray

	// Act
	err := arr.Scan(nil)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для nil")
	assert.Len(t, arr, 0, "Для nil должен вернуться пустой массив")
}

func TestStringArray_Scan_EmptyBytes(t *testing.T) {
	// Arrange
	var arr StringArray

	// Act
	err := arr.Scan([]byte{})

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для пустого массива байт")
	assert.Len(t, arr, 0, "Для пустых байт должен вернуться пустой массив")
}

func TestStringArray_Scan_InvalidType(t *testing.T) {
	// Arrange
	var arr StringArray

	// Act: передаём неподдерживаемый тип
	err := arr.Scan("not a byte slice")

	// Assert
	assert.Error(t, err, "Scan должен возвращать ошибку для неподдерживаемого типа")
}

func TestStringArray_Value_NonEmpty(t *testing.T) {
	// Arrange
	arr := StringArray{"q1", "q2", "q3"}

	// Act
	val, err := arr.Value()

	// Assert
	require.NoError(t, err, "Value не должен возвращать ошибку")

	bytes, ok := val.([]byte)
	require.True(t, ok, "Value должен возвращать []byte")
	assert.Equal(t, `["q1","q2","q3"]`, string(bytes), "JSON должен быть корректным")
}

func TestStringArray_Value_Empty(t *testing.T) {
	// Arrange
	arr := StringArray{}

	// Act
	val, err := arr.Value()

	// Assert
	require.NoError(t, err, "Value не должен возвращать ошибку для пустого массива")

	bytes, ok := val.([]byte)
	require.True(t, ok, "Value должен возвращать []byte")
	assert.Equal(t, "[]", string(bytes), "Пустой массив должен сериализоваться в []")
}

func TestStringArray_Value_Nil(t *testing.T) {
	// Arrange
	var arr StringArray = nil

	// Act
	val, err := arr.Value()

	// Assert
	require.NoError(t, err, "Value не должен возвращать ошибку для nil")

	bytes, ok := val.([]byte)
	require.True(t, ok, "Value должен возвращать []byte")
	assert.Equal(t, "[]", string(bytes), "nil должен сериализоваться в []")
}

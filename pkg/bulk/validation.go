package bulk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ingest_operation", operationValidator(
		OperationInsert, OperationUpdate, OperationUpsert, OperationDelete, OperationHardDelete))
	_ = v.RegisterValidation("query_operation", operationValidator(OperationQuery, OperationQueryAll))
	return v
}

func operationValidator(allowed ...Operation) validator.Func {
	return func(fl validator.FieldLevel) bool {
		op := Operation(fl.Field().String())
		for _, a := range allowed {
			if op == a {
				return true
			}
		}
		return false
	}
}

// validateOptions returns an *APIError listing every invalid field of opts.
func validateOptions(opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return bulkapi.WrapError(ErrorCodeInvalidOptions, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s has invalid value %q", fe.Field(), fe.Value()))
		}
	}
	return bulkapi.WrapError(ErrorCodeInvalidOptions, fmt.Errorf("invalid options: %s: %w", strings.Join(msgs, "; "), err))
}

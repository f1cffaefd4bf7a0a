package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct validates a provider payload and flattens the failures into one error.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var problems []string
	for _, fieldErr := range validationErrors {
		field := fieldErr.Namespace()
		switch fieldErr.Tag() {
		case "required":
			problems = append(problems, field+" is required")
		case "email":
			problems = append(problems, field+" must be a valid email")
		case "oneof":
			problems = append(problems, field+" must be one of "+fieldErr.Param())
		case "min":
			problems = append(problems, field+" must have at least "+fieldErr.Param()+" items")
		default:
			problems = append(problems, field+" is invalid")
		}
	}

	return fmt.Errorf("invalid payload: %s", strings.Join(problems, ", "))
}

// filterValidRecords drops malformed records so they never reach ingestion.
// A record is dropped for its own fields or its sender; bad recipients are
// removed and the record is kept.
func filterValidRecords(records []Message) ([]Message, int) {
	valid := records[:0]
	dropped := 0
	for _, record := range records {
		if err := ValidateStruct(&record); err != nil {
			log.WithFields(log.Fields{
				"message_id": record.ID,
				"thread_id":  record.ThreadID,
			}).WithError(err).Warn("Dropping malformed provider record")
			dropped++
			continue
		}
		if pruned := pruneRecipients(&record); pruned > 0 {
			log.WithFields(log.Fields{
				"message_id": record.ID,
				"pruned":     pruned,
			}).Debug("Removed malformed recipient addresses")
		}
		valid = append(valid, record)
	}
	return valid, dropped
}

func pruneRecipients(msg *Message) int {
	pruned := 0
	for _, list := range []*[]Address{&msg.To, &msg.CC, &msg.BCC, &msg.ReplyTo} {
		kept := (*list)[:0]
		for _, addr := range *list {
			if validate.Var(strings.TrimSpace(addr.Address), "required,email") != nil {
				pruned++
				continue
			}
			kept = append(kept, addr)
		}
		*list = kept
	}
	return pruned
}

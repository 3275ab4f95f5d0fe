package homework

import (
	"fmt"
	"strings"
)

// Verdicts maps every known status to the text shown to the student.
var Verdicts = map[Status]string{
	StatusReviewing: "Проект находится на ревью.",
	StatusRejected:  "К сожалению, в работе нашлись ошибки.",
	StatusApproved:  "Ревьюеру всё понравилось, работа зачтена!",
}

const (
	projectCheckedTemplate   = "У вас проверили работу \"%s\"!\n\n%s"
	unexpectedStatusTemplate = "Обнаружен неожиданный статус: \"%s\""
)

// ParseStatus formats the notification for rec.
//
// An unknown status is a KindUnknownStatus error, never a placeholder message.
func ParseStatus(rec Record) (string, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return "", Errorf(KindValidation, "parse status", "homework_name is empty")
	}
	verdict, ok := Verdicts[rec.Status]
	if !ok {
		return "", Errorf(KindUnknownStatus, "parse status", unexpectedStatusTemplate, rec.Status)
	}
	return fmt.Sprintf(projectCheckedTemplate, name, verdict), nil
}

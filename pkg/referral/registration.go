package referral

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"
)

// 本地手机号：6或7开头的8位数字
var mobilePhone = regexp.MustCompile(`^[67]\d{7}$`)

const (
	birthDateLayout = "2006-01-02"
	guestName       = "Invitado"
)

// RegistrationForm is what the referrer fills in for a slot.
type RegistrationForm struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	IdentityCard string `json:"identity_card"`
	BirthDate    string `json:"birth_date"`
}

// ValidationError is a form problem caught before anything is submitted.
type ValidationError = models.ValidationError

func invalid(field, message string) *ValidationError {
	return models.NewValidationError(field, message)
}

// CodeSource supplies the random values a registration needs.
type CodeSource interface {
	AccessCode() (string, error)
	PlaceholderPhone() (string, error)
}

type randomCodes struct{}

func (randomCodes) AccessCode() (string, error)       { return utils.GenerateAccessCode() }
func (randomCodes) PlaceholderPhone() (string, error) { return utils.GeneratePlaceholderPhone() }

// RandomCodes returns a CodeSource backed by crypto/rand
func RandomCodes() CodeSource { return randomCodes{} }

// BuildRegistration validates form for slot and produces the payload for the
// member directory. Volunteer slots need a name and a local mobile number and
// get a one-time access code. Guest slots need an identity document and get a
// placeholder name and phone.
func BuildRegistration(referrer models.Member, slot Slot, form RegistrationForm, codes CodeSource) (*models.RegistrationRequest, error) {
	if codes == nil {
		codes = RandomCodes()
	}

	form.Name = strings.TrimSpace(form.Name)
	form.Phone = strings.TrimSpace(form.Phone)
	form.IdentityCard = strings.TrimSpace(form.IdentityCard)
	form.BirthDate = strings.TrimSpace(form.BirthDate)

	referrerID := referrer.ID
	index := slot.Index
	req := &models.RegistrationRequest{
		IdentityCard: form.IdentityCard,
		MemberType:   slot.TargetMemberType,
		ReferrerID:   &referrerID,
		SlotID:       &index,
	}

	if form.BirthDate != "" {
		if _, err := time.Parse(birthDateLayout, form.BirthDate); err != nil {
			return nil, invalid("birth_date", "Fecha de nacimiento inválida")
		}
		birth := form.BirthDate
		req.BirthDate = &birth
	}

	switch slot.Kind {
	case SlotVolunteer:
		if form.Name == "" || form.Phone == "" {
			return nil, invalid("name", "Nombre y Celular requeridos")
		}
		if !mobilePhone.MatchString(form.Phone) {
			return nil, invalid("phone", "Formato de celular incorrecto.")
		}
		code, err := codes.AccessCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate access code: %w", err)
		}
		tier := referrer.TierOrDefault() + 1
		if slot.TargetTier != nil {
			tier = *slot.TargetTier
		}
		req.Name = form.Name
		req.Phone = form.Phone
		req.Tier = &tier
		req.IsVerified = models.VerificationPending
		req.AccessCode = code

	default:
		if form.IdentityCard == "" {
			return nil, invalid("identity_card", "CI requerido")
		}
		phone, err := codes.PlaceholderPhone()
		if err != nil {
			return nil, fmt.Errorf("failed to generate placeholder phone: %w", err)
		}
		req.Name = guestName
		req.Phone = phone
		req.IsVerified = models.VerificationInReview
	}

	return req, nil
}

// InviteMessage is the WhatsApp text sent to a newly registered volunteer.
func InviteMessage(appURL, accessCode string) string {
	return "¡Hola! 👋 Bienvenido al equipo.\n\n" +
		"Entra aquí para activar tu cuenta:\n" +
		"👉 " + appURL + "\n\n" +
		"Tu código es: *" + accessCode + "*\n\n" +
		"¡Estamos felices de tenerte con nosotros! ✨"
}

// InviteLink builds the wa.me link carrying InviteMessage to phone.
func InviteLink(countryCode, phone, appURL, accessCode string) string {
	return utils.WhatsAppLink(countryCode, phone, InviteMessage(appURL, accessCode))
}

// Package export writes member listings as spreadsheets.
package export

import (
	"fmt"
	"io"

	"xsch-membership-backend/pkg/models"

	"github.com/xuri/excelize/v2"
)

// SheetName 导出工作表名称
const SheetName = "Miembros"

// 每次读取的成员数
const pageSize = 500

// MemberLister pages through the member table.
type MemberLister interface {
	ListMembers(filter models.MemberFilter) ([]models.Member, int, error)
}

// AllMembers reads every member, newest first.
func AllMembers(l MemberLister) ([]models.Member, error) {
	var all []models.Member
	for page := 1; ; page++ {
		list, total, err := l.ListMembers(models.MemberFilter{Page: page, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to list members page %d: %w", page, err)
		}
		all = append(all, list...)
		if len(list) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

var memberHeaders = []interface{}{
	"ID", "Nombre", "Celular", "CI", "Fecha de nacimiento", "Tipo", "Nivel",
	"Estado", "Puntos", "Referido por", "Espacio", "Creado",
}

var verificationLabels = map[models.VerificationStatus]string{
	models.VerificationPending:  "Pendiente",
	models.VerificationInReview: "En revisión",
	models.VerificationVerified: "Verificado",
	models.VerificationRejected: "Rechazado",
}

// MembersFile builds a workbook with one row per member.
func MembersFile(members []models.Member) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}

	headers := memberHeaders
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		f.Close()
		return nil, err
	}

	for i, m := range members {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := memberRow(m)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

func memberRow(m models.Member) []interface{} {
	status, ok := verificationLabels[m.IsVerified]
	if !ok {
		status = m.IsVerified.String()
	}
	return []interface{}{
		m.ID,
		m.Name,
		m.Phone,
		m.IdentityCard,
		deref(m.BirthDate),
		m.MemberType.String(),
		optionalInt(m.Tier),
		status,
		m.Points,
		deref(m.ReferrerID),
		optionalInt(m.SlotID),
		m.CreatedAt.Format("02/01/2006 15:04"),
	}
}

// WriteMembers 把成员写成 xlsx 输出到 w
func WriteMembers(w io.Writer, members []models.Member) error {
	f, err := MembersFile(members)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

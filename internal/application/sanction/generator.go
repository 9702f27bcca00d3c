package sanction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/loan"
)

const downloadRoute = "/api/documents/download/sanction-letter/"

// Generator renders sanction letter documents into the configured
// output directory and serves download links for them.
type Generator struct {
	outputDir string
	log       zerolog.Logger
}

func NewGenerator(cfg *config.Config, log zerolog.Logger) (*Generator, error) {
	outputDir := cfg.SanctionLetterPath
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sanction letter directory: %w", err)
	}
	return &Generator{
		outputDir: outputDir,
		log:       log.With().Str("component", "sanction-generator").Logger(),
	}, nil
}

// Generate renders the letter for an approved application and returns
// the file path. Non-approved applications are rejected.
func (g *Generator) Generate(application *loan.Application, profile *loan.CustomerProfile) (string, error) {
	if application.Status != loan.StatusApproved {
		return "", fmt.Errorf("cannot generate sanction letter for non-approved loan")
	}

	now := time.Now()
	sanctionNumber := fmt.Sprintf("SL/%d/%s%s", now.Year(), now.Format("0102"), strings.ToUpper(uuid.NewString()[:6]))
	filename := fmt.Sprintf("sanction_letter_%s_%s.txt",
		strings.ReplaceAll(sanctionNumber, "/", "_"), uuid.NewString()[:8])
	path := filepath.Join(g.outputDir, filename)

	content := renderLetter(sanctionNumber, now, application, profile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write sanction letter: %w", err)
	}

	g.log.Info().Str("path", path).Str("loan_id", application.ID).Msg("sanction letter generated")
	return path, nil
}

// DownloadLink maps a letter file to its public download endpoint.
func (g *Generator) DownloadLink(path string) string {
	return downloadRoute + filepath.Base(path)
}

// Resolve returns the absolute path for a letter filename, refusing
// names that escape the output directory.
func (g *Generator) Resolve(filename string) (string, error) {
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid sanction letter filename")
	}
	path := filepath.Join(g.outputDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("sanction letter not found: %s", filename)
	}
	return path, nil
}

// FileInfo returns basic metadata for a generated letter.
func (g *Generator) FileInfo(path string) (map[string]any, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat sanction letter: %w", err)
	}
	return map[string]any{
		"filename":    filepath.Base(path),
		"size_bytes":  stat.Size(),
		"modified_at": stat.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

// LettersForLoan lists letter files on disk. The filename carries no
// loan id, so callers match on the recorded path instead.
func (g *Generator) List() ([]string, error) {
	entries, err := os.ReadDir(g.outputDir)
	if err != nil {
		return nil, fmt.Errorf("list sanction letters: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(g.outputDir, entry.Name()))
	}
	return files, nil
}

// CleanupOldFiles removes letters older than the retention window and
// returns how many were deleted.
func (g *Generator) CleanupOldFiles(retentionDays int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	entries, err := os.ReadDir(g.outputDir)
	if err != nil {
		return 0, fmt.Errorf("list sanction letters: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(g.outputDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		g.log.Info().Int("removed", removed).Msg("cleaned up old sanction letters")
	}
	return removed, nil
}

func renderLetter(sanctionNumber string, issuedAt time.Time, application *loan.Application, profile *loan.CustomerProfile) string {
	var b strings.Builder

	b.WriteString("TATA CAPITAL LIMITED\n")
	b.WriteString("Personal Loan Division\n")
	b.WriteString("Registered Office: 11th Floor, Tower A, Peninsula Business Park,\n")
	b.WriteString("Ganpatrao Kadam Marg, Lower Parel, Mumbai - 400013\n")
	b.WriteString("CIN: L65191MH1991PLC059642 | www.tatacapital.com\n")
	b.WriteString(strings.Repeat("=", 70) + "\n\n")

	b.WriteString("PERSONAL LOAN SANCTION LETTER\n\n")

	b.WriteString("Reference Information\n")
	fmt.Fprintf(&b, "Sanction Letter No: %s\n", sanctionNumber)
	fmt.Fprintf(&b, "Date: %s\n", issuedAt.Format("02 January, 2006"))
	fmt.Fprintf(&b, "Application ID: %s\n\n", application.ID)

	b.WriteString("Customer Information\n")
	name := profile.Name
	if name == "" || name == "GUEST_USER" {
		name = "Valued Customer"
	}
	fmt.Fprintf(&b, "Name: %s\n", name)
	if profile.City != "" {
		fmt.Fprintf(&b, "City: %s\n", profile.City)
	}
	if profile.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", profile.Phone)
	}
	if profile.EmploymentType != "" {
		fmt.Fprintf(&b, "Employment: %s\n", strings.ReplaceAll(profile.EmploymentType, "_", " "))
	}
	b.WriteString("\n")

	b.WriteString("Loan Sanction Details\n")
	fmt.Fprintf(&b, "SANCTIONED AMOUNT: Rs. %.0f\n", application.RequestedAmount)
	fmt.Fprintf(&b, "Interest Rate: %.2f%% per annum\n", application.InterestRate)
	fmt.Fprintf(&b, "Loan Tenure: %d months\n", application.Tenure)
	if application.EMI > 0 {
		fmt.Fprintf(&b, "Monthly EMI: Rs. %.0f\n", application.EMI)
		fmt.Fprintf(&b, "Total Amount Payable: Rs. %.0f\n", application.EMI*float64(application.Tenure))
	}
	b.WriteString("Processing Fee: As per schedule of charges\n\n")

	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString("Congratulations! We are delighted to inform you that your Personal Loan\n")
	b.WriteString("application has been APPROVED.\n\n")
	b.WriteString("Your loan will be processed and disbursed upon completion of documentation\n")
	b.WriteString("and verification formalities. Our relationship manager will contact you\n")
	b.WriteString("within 2 business days to guide you through the next steps.\n\n")

	b.WriteString("NEXT STEPS:\n")
	b.WriteString("- Complete KYC documentation\n")
	b.WriteString("- Submit income and address proof\n")
	b.WriteString("- Sign loan agreement\n")
	b.WriteString("- Provide bank account details for disbursement\n\n")

	b.WriteString("Important Terms & Conditions\n")
	terms := []string{
		"This sanction is valid for 30 days from the date of this letter.",
		"Loan disbursement is subject to satisfactory documentation and verification.",
		"Interest rate is as per company policy and may vary based on RBI guidelines.",
		"EMI will be auto-debited from your registered bank account monthly.",
		"Processing fee and other charges as per current tariff will be applicable.",
		"Prepayment is allowed with applicable charges as per loan agreement.",
		"All terms and conditions of the loan agreement will apply.",
		"This offer is subject to credit and risk assessment policies of the company.",
	}
	for i, term := range terms {
		fmt.Fprintf(&b, "%d. %s\n", i+1, term)
	}
	b.WriteString("\n")

	b.WriteString("Customer Care: 1800-209-8800 (Toll Free)\n")
	b.WriteString("Email: customercare@tatacapital.com\n\n")
	b.WriteString("Warm Regards,\n")
	b.WriteString("Loan Processing Team\n")
	b.WriteString("Tata Capital Limited\n")

	return b.String()
}

package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/internal/store"
)

// recordPipeline writes to the CSV store and mirrors newly written records to
// the company repository.
type recordPipeline struct {
	store       *store.CSVStore
	companyRepo repository.CompanyRepository
	logger      *zap.Logger
}

// NewRecordPipeline returns the writer used by a search session. companyRepo may be nil.
func NewRecordPipeline(st *store.CSVStore, companyRepo repository.CompanyRepository, logger *zap.Logger) repository.RecordWriter {
	return &recordPipeline{
		store:       st,
		companyRepo: companyRepo,
		logger:      logger,
	}
}

func (p *recordPipeline) Write(ctx context.Context, rec entity.CompanyRecord) (repository.WriteResult, error) {
	res, err := p.store.Write(rec)
	if err != nil || res != repository.Written || p.companyRepo == nil {
		return res, err
	}

	rec.Phones = store.NormalizePhones(rec.Phones)
	rec.Emails = store.NormalizeEmails(rec.Emails)
	if err := p.companyRepo.Save(ctx, rec); err != nil {
		// A mirror failure never fails the CSV write.
		p.logger.Warn("failed to mirror record", zap.String("name", rec.Name), zap.Error(err))
	}
	return res, nil
}

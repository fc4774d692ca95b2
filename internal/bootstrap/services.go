package bootstrap

import (
	"knot/internal/cleanup"
	"knot/internal/config"
	"knot/internal/featureflags"
	"knot/internal/repository"
	"knot/internal/service"
	"knot/internal/storage"

	"gorm.io/gorm"
)

// Services is the repository and service graph for one database and bucket.
type Services struct {
	Flags *featureflags.Manager

	Files     repository.FileRepository
	Deletions repository.FileDeletionRepository

	Accounts *service.AccountService
	FileSvc  *service.FileService
	Posts    *service.PostService
	Saves    *service.SaveService
	Users    *service.UserService
	Sweeper  *cleanup.Sweeper
}

// NewServices wires repositories into services.
func NewServices(cfg *config.Config, db *gorm.DB, bucket storage.Bucket) *Services {
	accountRepo := repository.NewAccountRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	saveRepo := repository.NewSaveRepository(db)

	s := &Services{
		Flags:     featureflags.NewManager(cfg.FeatureFlags),
		Files:     repository.NewFileRepository(db),
		Deletions: repository.NewFileDeletionRepository(db),
	}

	s.Accounts = service.NewAccountService(accountRepo, sessionRepo, userRepo, cfg)
	s.FileSvc = service.NewFileService(s.Files, s.Deletions, bucket, s.Flags, cfg)
	s.Posts = service.NewPostService(postRepo, userRepo, s.FileSvc)
	s.Saves = service.NewSaveService(saveRepo, postRepo)
	s.Users = service.NewUserService(userRepo, s.FileSvc)
	s.Sweeper = cleanup.NewSweeper(s.Deletions, s.Files, bucket, cfg)
	return s
}

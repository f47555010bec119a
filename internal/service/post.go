package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edume/internal/feed"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/moderation"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/storage"
)

var (
	ErrValidation = errors.New("invalid post")
	ErrNotFound   = errors.New("post not found")
	ErrForbidden  = errors.New("only the author can delete a post")
)

// Draft: данные новой публикации до модерации.
type Draft struct {
	Title             string
	Description       string
	Category          model.Category
	Author            model.Participant
	Location          *model.UserLocation
	Price             *float64
	IsPriceNegotiable bool
	ContactEmail      string
}

type PostService struct {
	posts *repository.PostRepository
	gate  *moderation.Gate

	now   func() time.Time
	newID func() string
}

func NewPostService(store storage.Store, gate *moderation.Gate) *PostService {
	return &PostService{
		posts: repository.NewPostRepository(store),
		gate:  gate,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func validateDraft(d *Draft) error {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.ContactEmail = strings.TrimSpace(d.ContactEmail)
	switch {
	case d.Title == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case d.Description == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case !d.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrValidation, d.Category)
	case d.Author.ID == "":
		return fmt.Errorf("%w: author is required", ErrValidation)
	case d.Price != nil && (*d.Price < 0 || math.IsNaN(*d.Price) || math.IsInf(*d.Price, 0)):
		return fmt.Errorf("%w: price must be a non-negative number", ErrValidation)
	case d.Location != nil && !feed.ValidCoordinates(d.Location.Latitude, d.Location.Longitude):
		return fmt.Errorf("%w: location out of range", ErrValidation)
	}
	return nil
}

// Publish: валидация без I/O -> модерация -> запись. Decision возвращается всегда, когда
// модерация состоялась, чтобы вызывающий видел деградированные одобрения.
// Отказ модерации, *moderation.RejectionError.
func (s *PostService) Publish(ctx context.Context, d Draft) (*model.Post, moderation.Decision, error) {
	defer logger.DeferLogDuration("post.Publish", time.Now())()
	if err := validateDraft(&d); err != nil {
		return nil, moderation.Decision{}, err
	}

	decision := s.gate.Screen(ctx, d.Title, d.Description)
	if !decision.Approved() {
		logger.Infof("post rejected: author=%s stage=%s reason=%q", d.Author.ID, decision.Stage, decision.Reason)
		return nil, decision, &moderation.RejectionError{Reason: decision.Reason}
	}
	if decision.Degraded {
		logger.Warnf("post approved without remote moderation: author=%s", d.Author.ID)
	}

	p := &model.Post{
		ID:                s.newID(),
		Title:             d.Title,
		Description:       d.Description,
		Category:          d.Category,
		Timestamp:         s.now(),
		UserID:            d.Author.ID,
		UserName:          d.Author.Name,
		Price:             d.Price,
		IsPriceNegotiable: d.Price != nil && d.IsPriceNegotiable,
	}
	if d.Location != nil {
		label := d.Location.DisplayText()
		lat, lon := d.Location.Latitude, d.Location.Longitude
		p.UserLocation = &label
		p.Latitude = &lat
		p.Longitude = &lon
	}
	if d.ContactEmail != "" {
		email := d.ContactEmail
		p.ContactEmail = &email
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, decision, fmt.Errorf("post.Publish: %w", err)
	}
	logger.Infof("post published: id=%s author=%s category=%s", p.ID, p.UserID, p.Category)
	return p, decision, nil
}

// Delete: жёсткое удаление поста его автором.
func (s *PostService) Delete(ctx context.Context, postID, requesterID string) error {
	defer logger.DeferLogDuration("post.Delete", time.Now())()
	p, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("post.Delete: %w", err)
	}
	if p.UserID != requesterID {
		return ErrForbidden
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("post.Delete: %w", err)
	}
	logger.Infof("post deleted: id=%s", postID)
	return nil
}

// ListMine: посты пользователя для экрана профиля.
func (s *PostService) ListMine(ctx context.Context, userID string) ([]model.Post, error) {
	return s.posts.ListByUser(ctx, userID)
}

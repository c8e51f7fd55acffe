package services

import (
	"context"
	"sort"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"

	"github.com/google/uuid"
)

// fakePackageRepo - реализация PackageRepository в памяти для тестов.
type fakePackageRepo struct {
	packages    map[string]*models.BidPackage
	contractors map[string]*models.Contractor // по auth_id
	invitations []models.Invitation
}

func newFakePackageRepo() *fakePackageRepo {
	return &fakePackageRepo{
		packages:    make(map[string]*models.BidPackage),
		contractors: make(map[string]*models.Contractor),
	}
}

func (f *fakePackageRepo) addPackage(id string, deadline *time.Time) *models.BidPackage {
	pkg := &models.BidPackage{ID: id, Code: "PKG-" + id, Name: "Package " + id, Deadline: deadline, CreatedAt: time.Now()}
	f.packages[id] = pkg
	return pkg
}

func (f *fakePackageRepo) addContractor(authID, name string) *models.Contractor {
	c := &models.Contractor{ID: uuid.New().String(), AuthID: authID, Name: name, Email: authID + "@example.com"}
	f.contractors[authID] = c
	return c
}

func (f *fakePackageRepo) invite(contractorID, bidPackageID string) {
	f.invitations = append(f.invitations, models.Invitation{
		ID:           uuid.New().String(),
		ContractorID: contractorID,
		BidPackageID: bidPackageID,
		SentOn:       time.Now(),
	})
}

func (f *fakePackageRepo) GetPackageByID(_ context.Context, bidPackageID string) (*models.BidPackage, error) {
	return f.packages[bidPackageID], nil
}

func (f *fakePackageRepo) GetContractorByAuthID(_ context.Context, authID string) (*models.Contractor, error) {
	return f.contractors[authID], nil
}

func (f *fakePackageRepo) GetContractorByEmail(_ context.Context, email string) (*models.Contractor, error) {
	for _, c := range f.contractors {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakePackageRepo) GetInvitation(_ context.Context, contractorID, bidPackageID string) (*models.Invitation, error) {
	for i := range f.invitations {
		if f.invitations[i].ContractorID == contractorID && f.invitations[i].BidPackageID == bidPackageID {
			return &f.invitations[i], nil
		}
	}
	return nil, nil
}

func (f *fakePackageRepo) GetInvitationByContractor(_ context.Context, contractorID string) (*models.Invitation, error) {
	for i := range f.invitations {
		if f.invitations[i].ContractorID == contractorID {
			return &f.invitations[i], nil
		}
	}
	return nil, nil
}

// fakeBidRepo - реализация BidRepository в памяти для тестов.
type fakeBidRepo struct {
	bids map[string]*models.Bid
	now  time.Time
}

func newFakeBidRepo() *fakeBidRepo {
	return &fakeBidRepo{bids: make(map[string]*models.Bid), now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// tick продвигает часы фейка, чтобы метки времени записей различались.
func (f *fakeBidRepo) tick() time.Time {
	f.now = f.now.Add(time.Minute)
	return f.now
}

func (f *fakeBidRepo) GetBidByID(_ context.Context, bidID string) (*models.Bid, error) {
	if bid, ok := f.bids[bidID]; ok {
		copied := *bid
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeBidRepo) GetActiveBid(_ context.Context, contractorID, bidPackageID string) (*models.Bid, error) {
	for _, bid := range f.bids {
		if bid.ContractorID == contractorID && bid.BidPackageID == bidPackageID && bid.Status == models.ActiveBid {
			copied := *bid
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBidRepo) CreateBid(_ context.Context, contractorID, bidPackageID string, price float64, label string) (*models.Bid, error) {
	now := f.tick()
	bid := &models.Bid{
		ID:           uuid.New().String(),
		ContractorID: contractorID,
		BidPackageID: bidPackageID,
		Price:        price,
		Label:        label,
		Status:       models.ActiveBid,
		SubmittedOn:  now,
		UpdatedOn:    now,
	}
	f.bids[bid.ID] = bid
	copied := *bid
	return &copied, nil
}

func (f *fakeBidRepo) UpdateBid(_ context.Context, bidID string, price *float64, label *string) (*models.Bid, error) {
	bid, ok := f.bids[bidID]
	if !ok {
		return nil, nil
	}
	if price != nil {
		bid.Price = *price
	}
	if label != nil {
		bid.Label = *label
	}
	bid.UpdatedOn = f.tick()
	copied := *bid
	return &copied, nil
}

func (f *fakeBidRepo) WithdrawBid(_ context.Context, bidID string) (*models.Bid, error) {
	bid, ok := f.bids[bidID]
	if !ok {
		return nil, nil
	}
	bid.Status = models.WithdrawnBid
	bid.UpdatedOn = f.tick()
	copied := *bid
	return &copied, nil
}

func (f *fakeBidRepo) GetPackageBids(_ context.Context, bidPackageID string, limit, offset int, statuses []string) ([]models.Bid, error) {
	var result []models.Bid
	for _, bid := range f.bids {
		if bid.BidPackageID != bidPackageID {
			continue
		}
		if len(statuses) > 0 {
			matched := false
			for _, s := range statuses {
				if string(bid.Status) == s {
					matched = true
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *bid)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedOn.After(result[j].SubmittedOn) })
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeBidRepo) GetActivePackageBids(_ context.Context, bidPackageID string) ([]models.Bid, error) {
	var result []models.Bid
	for _, bid := range f.bids {
		if bid.BidPackageID == bidPackageID && bid.Status == models.ActiveBid {
			result = append(result, *bid)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedOn.Before(result[j].SubmittedOn) })
	return result, nil
}

func (f *fakeBidRepo) GetAllPackageBids(_ context.Context, bidPackageID string) ([]models.Bid, error) {
	var result []models.Bid
	for _, bid := range f.bids {
		if bid.BidPackageID == bidPackageID {
			result = append(result, *bid)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedOn.Before(result[j].SubmittedOn) })
	return result, nil
}

func (f *fakeBidRepo) GetContractorBids(_ context.Context, contractorID string, limit, offset int) ([]models.Bid, error) {
	var result []models.Bid
	for _, bid := range f.bids {
		if bid.ContractorID == contractorID {
			result = append(result, *bid)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedOn.After(result[j].SubmittedOn) })
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

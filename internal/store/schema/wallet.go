package schema

import "time"

// Wallet represents the wallets table - one row per managed on-chain account address
type Wallet struct {
	// ID is the wallet identifier (uuid)
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// Address is the on-chain account address, globally unique
	Address string `gorm:"column:address;not null;type:text;uniqueIndex"`
	// Type distinguishes wallet roles (user, community, operator)
	Type string `gorm:"column:type;not null;type:text"`
	// Index is the HD derivation index assigned by the provisioning layer
	Index int `gorm:"column:index;not null"`
	// CommunityID references the owning community (managed externally)
	CommunityID string `gorm:"column:community_id;not null;type:text;index"`
	// CreatedAt is the timestamp when this wallet was registered
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this wallet was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Wallet model
func (Wallet) TableName() string {
	return "wallets"
}

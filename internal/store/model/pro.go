package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Pro mirrors the presence and profile data the pro app publishes.
type Pro struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	Name          string     `json:"name"`
	ServiceTypes  string     `json:"serviceTypes"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	Rating        float64    `json:"rating"`
	Available     bool       `json:"available"`
	Online        bool       `json:"online" gorm:"index"`
	CanAcceptJobs bool       `json:"canAcceptJobs"`
	NoShowCount   int        `json:"noShowCount" gorm:"not null;default:0"`
	LastNoShowAt  *time.Time `json:"lastNoShowAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type ProList []Pro

func (p Pro) String() string {
	v, _ := json.Marshal(p)
	return string(v)
}

// Serves reports whether the pro performs serviceType. A pro without listed types serves all of them.
func (p Pro) Serves(serviceType string) bool {
	if strings.TrimSpace(p.ServiceTypes) == "" || serviceType == "" {
		return true
	}
	for _, t := range strings.Split(p.ServiceTypes, ",") {
		if strings.EqualFold(strings.TrimSpace(t), serviceType) {
			return true
		}
	}
	return false
}

func JoinServiceTypes(types []string) string {
	clean := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}

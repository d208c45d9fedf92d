package device

import "github.com/okian/tapsense/internal/domain/model"

// Vec3 is the vector type devices report.
type Vec3 = model.Vec3

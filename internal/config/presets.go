package config

// Gain tables from the landing-experiment parameter set. The adrc
// values follow the AMESO paper's table 1.
var gainPresets = map[string]map[string]float64{
	"pid": {
		"Kp_xy":          2.0,
		"Kp_z":           2.0,
		"Kv_xy":          2.0,
		"Kv_z":           2.0,
		"Kvi_xy":         0.3,
		"Kvi_z":          0.3,
		"tilt_angle_max": 10.0,
		"pxy_int_max":    0.5,
		"pz_int_max":     0.5,
	},
	"ude": {
		"Kp_xy":          0.5,
		"Kp_z":           0.5,
		"Kd_xy":          2.0,
		"Kd_z":           2.0,
		"T_ude":          1.0,
		"tilt_angle_max": 20.0,
		"pxy_int_max":    1.0,
		"pz_int_max":     1.0,
	},
	"adrc": {
		"k":           0.8,
		"k1":          -0.15,
		"k2":          -3.0,
		"c1":          1.5,
		"c2":          0.6,
		"lambda_D":    1.0,
		"beta_max":    1.0,
		"gamma":       0.2,
		"lambda":      0.8,
		"sigma":       0.9,
		"omega_star":  0.02,
		"t1":          0.02,
		"t2":          0.04,
		"l":           5.0,
		"kp":          2.0,
		"ki":          0.3,
		"kd":          2.0,
		"pxy_int_max": 0.5,
		"pz_int_max":  0.5,
	},
}

// GainDefaults returns a copy of the preset gain table for a
// controller, or nil when the name is unknown.
func GainDefaults(controller string) map[string]float64 {
	src, ok := gainPresets[controller]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Preset builds a full config for a named controller.
func Preset(controller string) *Config {
	gains := GainDefaults(controller)
	if gains == nil {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Controller = controller
	cfg.Gains = gains
	return cfg
}

func ListPresets() []string {
	return []string{"adrc", "pid", "ude"}
}

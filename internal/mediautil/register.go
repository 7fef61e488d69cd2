package mediautil

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)
